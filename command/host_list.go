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

const (
	// shortId is the length of the IDs shown unless -verbose is given.
	shortId = 8
)

// HostListStub is the view of a host the list command prints and filters.
type HostListStub struct {
	ID           string
	Name         string
	State        string
	Kind         string
	AccountID    string
	AgentID      string
	AgentState   string
	ComputeFree  int64
	Load         int
	StoragePools []string
	Eligible     bool
}

type HostListCommand struct {
	Meta
}

func (c *HostListCommand) Help() string {
	helpText := `
Usage: hostpool host list [options]

  List the hosts of an inventory in ID order, with the number of instances
  counted against each host and the live storage pools attached to it.

General Options:

  ` + generalOptionsUsage(FlagSetDefault) + `

Host List Options:

  -filter
    Specifies an expression used to filter the hosts. Every field of the
    JSON output may be used, for example:
    'State == "active" and Kind == "compute"'.

  -reverse
    List hosts in descending ID order.

  -json
    Output the hosts in JSON format.

  -verbose
    Display full IDs.
`
	return strings.TrimSpace(helpText)
}

func (c *HostListCommand) Synopsis() string {
	return "List inventory hosts"
}

func (c *HostListCommand) AutocompleteFlags() complete.Flags {
	return mergeAutocompleteFlags(c.Meta.AutocompleteFlags(FlagSetDefault),
		complete.Flags{
			"-filter":  complete.PredictAnything,
			"-reverse": complete.PredictNothing,
			"-json":    complete.PredictNothing,
			"-verbose": complete.PredictNothing,
		})
}

func (c *HostListCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *HostListCommand) Name() string { return "host list" }

func (c *HostListCommand) Run(args []string) int {
	var filter string
	var reverse, json, verbose bool

	flags := c.Meta.FlagSet(c.Name(), FlagSetDefault)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&filter, "filter", "", "")
	flags.BoolVar(&reverse, "reverse", false, "")
	flags.BoolVar(&json, "json", false, "")
	flags.BoolVar(&verbose, "verbose", false, "")

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
	logger := c.Meta.logger(config)

	store, err := c.Meta.newStateStore(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading inventory: %s", err))
		return 1
	}

	sort := state.SortDefault
	if reverse {
		sort = state.SortReverse
	}
	stubs, err := hostListStubs(store, sort, eval)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error listing hosts: %s", err))
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
		c.Ui.Output("No hosts found")
		return 0
	}
	c.Ui.Output(formatHostList(stubs, verbose))
	return 0
}

// hostListStubs reads every host from a single snapshot, joined to its
// agent, load and live storage pools, keeping those matching eval.
func hostListStubs(store *state.StateStore, sort state.SortOption, eval *bexpr.Evaluator) ([]*HostListStub, error) {
	snap, err := store.Snapshot()
	if err != nil {
		return nil, err
	}

	iter, err := snap.Hosts(nil, sort)
	if err != nil {
		return nil, err
	}

	stubs := []*HostListStub{}
	for _, host := range state.Collect(state.NewResultIterator[*structs.Host](iter)) {
		stub, err := hostListStub(snap, host)
		if err != nil {
			return nil, err
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

func hostListStub(snap *state.StateSnapshot, host *structs.Host) (*HostListStub, error) {
	stub := &HostListStub{
		ID:           host.ID,
		Name:         host.Name,
		State:        host.State,
		Kind:         host.Kind,
		AccountID:    host.AccountID,
		AgentID:      host.AgentID,
		ComputeFree:  host.ComputeFree,
		StoragePools: []string{},
	}

	agentActive := true
	if host.HasAgent() {
		agent, err := snap.AgentByID(nil, host.AgentID)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			stub.AgentState = agent.State
			agentActive = agent.Active()
		}
	}

	load, err := snap.HostLoad(nil, host.ID)
	if err != nil {
		return nil, err
	}
	stub.Load = load

	iter, err := snap.StoragePoolHostMapsByHost(nil, host.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range state.Collect(state.NewResultIterator[*structs.StoragePoolHostMap](iter)) {
		if !m.Live() {
			continue
		}
		pool, err := snap.StoragePoolByID(nil, m.StoragePoolID)
		if err != nil {
			return nil, err
		}
		if pool != nil && pool.Active() {
			stub.StoragePools = append(stub.StoragePools, pool.ID)
		}
	}

	stub.Eligible = structs.HostStateSchedulable(host.State) && agentActive && len(stub.StoragePools) > 0
	return stub, nil
}

func formatHostList(stubs []*HostListStub, verbose bool) string {
	id := func(s string) string {
		if verbose {
			return s
		}
		return limit(s, shortId)
	}

	out := make([]string, len(stubs)+1)
	out[0] = "ID|Name|State|Kind|Account|Agent|Compute Free|Load|Storage Pools|Eligible"
	for i, s := range stubs {
		out[i+1] = fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%d|%s|%v",
			id(s.ID),
			s.Name,
			s.State,
			s.Kind,
			s.AccountID,
			id(s.AgentID),
			s.ComputeFree,
			s.Load,
			strings.Join(s.StoragePools, ","),
			s.Eligible)
	}
	return formatList(out)
}
