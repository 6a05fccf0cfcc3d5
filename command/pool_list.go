// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
	"github.com/posener/complete"
)

// PoolListStub is the view of a storage pool the list command prints and
// filters. Hosts holds the hosts with a live attachment, RemovedHosts the
// hosts whose attachment was removed and not yet purged.
type PoolListStub struct {
	ID           string
	Name         string
	State        string
	Kind         string
	Hosts        []string
	RemovedHosts []string
}

type PoolListCommand struct {
	Meta
}

func (c *PoolListCommand) Help() string {
	helpText := `
Usage: hostpool pool list [options]

  List the storage pools of an inventory in ID order, with the hosts each
  pool is attached to.

General Options:

  ` + generalOptionsUsage(FlagSetDefault) + `

Pool List Options:

  -filter
    Specifies an expression used to filter the storage pools, for example:
    'State == "active" and "h1" in Hosts'.

  -reverse
    List storage pools in descending ID order.

  -json
    Output the storage pools in JSON format.
`
	return strings.TrimSpace(helpText)
}

func (c *PoolListCommand) Synopsis() string {
	return "List inventory storage pools"
}

func (c *PoolListCommand) AutocompleteFlags() complete.Flags {
	return mergeAutocompleteFlags(c.Meta.AutocompleteFlags(FlagSetDefault),
		complete.Flags{
			"-filter":  complete.PredictAnything,
			"-reverse": complete.PredictNothing,
			"-json":    complete.PredictNothing,
		})
}

func (c *PoolListCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *PoolListCommand) Name() string { return "pool list" }

func (c *PoolListCommand) Run(args []string) int {
	var filter string
	var reverse, json bool

	flags := c.Meta.FlagSet(c.Name(), FlagSetDefault)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&filter, "filter", "", "")
	flags.BoolVar(&reverse, "reverse", false, "")
	flags.BoolVar(&json, "json", false, "")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	// Check that we got no arguments
	if args = flags.Args(); len(args) != 0 {
		c.Ui.Error("This command takes no arguments")
		c.Ui.Error(commandErrorText(c))
		return 1
	}

	var eval *bexpr.Evaluator
	if filter != "" {
		var err error
		eval, err = bexpr.CreateEvaluator(filter)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error parsing filter: %s", err))
			return 1
		}
	}

	config, err := c.Meta.loadConfig()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading configuration: %s", err))
		return 1
	}

	store, err := c.Meta.newStateStore(config, c.Meta.logger(config))
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading inventory: %s", err))
		return 1
	}

	sort := state.SortDefault
	if reverse {
		sort = state.SortReverse
	}
	stubs, err := poolListStubs(store, sort, eval)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error listing storage pools: %s", err))
		return 1
	}

	if json {
		out, err := formatJSON(stubs)
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
		c.Ui.Output(out)
		return 0
	}

	if len(stubs) == 0 {
		c.Ui.Output("No storage pools found")
		return 0
	}

	out := make([]string, len(stubs)+1)
	out[0] = "ID|Name|State|Kind|Hosts|Removed Hosts"
	for i, s := range stubs {
		out[i+1] = fmt.Sprintf("%s|%s|%s|%s|%s|%s",
			s.ID,
			s.Name,
			s.State,
			s.Kind,
			strings.Join(s.Hosts, ","),
			strings.Join(s.RemovedHosts, ","))
	}
	c.Ui.Output(formatList(out))
	return 0
}

func poolListStubs(store *state.StateStore, sort state.SortOption, eval *bexpr.Evaluator) ([]*PoolListStub, error) {
	snap, err := store.Snapshot()
	if err != nil {
		return nil, err
	}

	iter, err := snap.StoragePools(nil, sort)
	if err != nil {
		return nil, err
	}

	stubs := []*PoolListStub{}
	for _, pool := range state.Collect(state.NewResultIterator[*structs.StoragePool](iter)) {
		stub := &PoolListStub{
			ID:           pool.ID,
			Name:         pool.Name,
			State:        pool.State,
			Kind:         pool.Kind,
			Hosts:        []string{},
			RemovedHosts: []string{},
		}

		maps, err := snap.StoragePoolHostMapsByPool(nil, pool.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range state.Collect(state.NewResultIterator[*structs.StoragePoolHostMap](maps)) {
			if m.Live() {
				stub.Hosts = append(stub.Hosts, m.HostID)
			} else {
				stub.RemovedHosts = append(stub.RemovedHosts, m.HostID)
			}
		}

		if eval != nil {
			match, err := eval.Evaluate(stub)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate filter: %w", err)
			}
			if !match {
				continue
			}
		}
		stubs = append(stubs, stub)
	}
	return stubs, nil
}
