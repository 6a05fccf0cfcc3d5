// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/hostpool/command/agent"
	flaghelper "github.com/hashicorp/hostpool/helper/flags"
	"github.com/hashicorp/hostpool/helper/pointer"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
	"github.com/hashicorp/hostpool/scheduler"
	"github.com/posener/complete"
)

// CandidateStub is one selected (host, storage pool) pair, decorated with
// the host figures the ordering was based on.
type CandidateStub struct {
	HostID        string
	StoragePoolID string
	ComputeFree   int64
	Load          int
}

type SelectCommand struct {
	Meta
}

func (c *SelectCommand) Help() string {
	helpText := `
Usage: hostpool select [options]

  Select candidate (host, storage pool) pairs from an inventory, in the
  order the allocator offers them.

  In placement mode hosts are ordered by the number of instances counted
  against them, least busy first, and every eligible storage pool of a host
  follows it. In pool mode hosts are ordered by free compute: largest first
  when the spread policy is enabled, smallest first otherwise.

General Options:

  ` + generalOptionsUsage(FlagSetDefault) + `

Select Options:

  -mode=<placement|pool>
    The kind of query to run. Defaults to placement.

  -host=<id>
    Restrict candidates to the given host. May be given multiple times or
    as a comma separated list.

  -compute=<n>
    The minimum free compute a host must have.

  -kind=<kind>
    Restrict hosts to the given kind. In pool mode storage pools must be of
    the same kind.

  -account=<id>
    Restrict hosts to those owned by the given account.

  -volume=<id>
    A volume the candidates are selected for. May be given multiple times.
    Volumes are reported with the results and do not affect selection.

  -spread=<bool>
    Override the spread policy of the inventory and configuration.

  -limit=<n>
    Stop after n candidate rows. Defaults to all rows.

  -stats
    Print the allocator metrics collected while selecting.

  -json
    Output the candidates in JSON format.
`
	return strings.TrimSpace(helpText)
}

func (c *SelectCommand) Synopsis() string {
	return "Select candidate hosts and storage pools"
}

func (c *SelectCommand) AutocompleteFlags() complete.Flags {
	return mergeAutocompleteFlags(c.Meta.AutocompleteFlags(FlagSetDefault),
		complete.Flags{
			"-mode":    complete.PredictSet("placement", "pool"),
			"-host":    complete.PredictAnything,
			"-compute": complete.PredictAnything,
			"-kind":    complete.PredictAnything,
			"-account": complete.PredictAnything,
			"-volume":  complete.PredictAnything,
			"-spread":  complete.PredictSet("true", "false"),
			"-limit":   complete.PredictAnything,
			"-stats":   complete.PredictNothing,
			"-json":    complete.PredictNothing,
		})
}

func (c *SelectCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *SelectCommand) Name() string { return "select" }

func (c *SelectCommand) Run(args []string) int {
	var modeStr, kind, account string
	var hosts, volumes flaghelper.StringFlag
	var compute int64
	var spread, stats, json bool
	var limit int

	flags := c.Meta.FlagSet(c.Name(), FlagSetDefault)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&modeStr, "mode", "placement", "")
	flags.Var(&hosts, "host", "")
	flags.Int64Var(&compute, "compute", 0, "")
	flags.StringVar(&kind, "kind", "", "")
	flags.StringVar(&account, "account", "", "")
	flags.Var(&volumes, "volume", "")
	flags.BoolVar(&spread, "spread", false, "")
	flags.IntVar(&limit, "limit", 0, "")
	flags.BoolVar(&stats, "stats", false, "")
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

	mode, err := structs.ParseCandidateMode(modeStr)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid -mode: %s", err))
		return 1
	}
	if limit < 0 {
		c.Ui.Error("-limit must not be negative")
		return 1
	}

	opts := &structs.QueryOptions{
		Kind:      kind,
		AccountID: account,
	}
	if len(hosts) > 0 {
		opts.Hosts = set.From(hosts.Split())
	}

	var spreadSet bool
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "compute":
			opts.Compute = pointer.Of(compute)
		case "spread":
			spreadSet = true
		}
	})

	config, err := c.Meta.loadConfig()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading configuration: %s", err))
		return 1
	}
	if spreadSet {
		config.Allocator = config.Allocator.Merge(&agent.AllocatorConfig{Spread: pointer.Of(spread)})
	}

	inm, err := agent.SetupTelemetry(config.Telemetry)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error setting up telemetry: %s", err))
		return 1
	}

	logger := c.Meta.logger(config)
	store, err := c.Meta.newStateStore(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading inventory: %s", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	candidates, err := selectCandidates(ctx, logger, store, volumes.Split(), opts, mode, limit)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error selecting candidates: %s", err))
		return 1
	}

	if json {
		out, err := formatJSON(candidates)
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
		c.Ui.Output(out)
	} else if len(candidates) == 0 {
		c.Ui.Output("No candidates found")
	} else {
		if len(volumes) > 0 {
			c.Ui.Output(fmt.Sprintf("Candidates for volumes %s\n", strings.Join(volumes.Split(), ", ")))
		}
		out := make([]string, len(candidates)+1)
		out[0] = "Host ID|Storage Pool ID|Compute Free|Load"
		for i, cand := range candidates {
			out[i+1] = fmt.Sprintf("%s|%s|%d|%d",
				cand.HostID, cand.StoragePoolID, cand.ComputeFree, cand.Load)
		}
		c.Ui.Output(formatList(out))
	}

	if stats {
		c.Ui.Output("\nAllocator Metrics")
		c.Ui.Output(formatMetrics(inm))
	}
	return 0
}

// selectCandidates runs the candidate query against a snapshot of store and
// decorates each row with the host's free compute and load, read from the
// same snapshot. A positive limit closes the cursor early.
func selectCandidates(ctx context.Context, logger hclog.Logger, store *state.StateStore,
	volumes []string, opts *structs.QueryOptions, mode structs.CandidateMode, limit int) ([]*CandidateStub, error) {

	snap, err := store.Snapshot()
	if err != nil {
		return nil, err
	}
	alloc := scheduler.NewAllocator(logger, snap)
	cursor, err := alloc.SelectCandidates(ctx, volumes, opts, mode)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	candidates := []*CandidateStub{}
	for row, err := range cursor.Rows() {
		if err != nil {
			return nil, err
		}

		host, err := snap.HostByID(nil, row.HostID)
		if err != nil {
			return nil, err
		}
		load, err := snap.HostLoad(nil, row.HostID)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, &CandidateStub{
			HostID:        row.HostID,
			StoragePoolID: row.StoragePoolID,
			ComputeFree:   host.ComputeFree,
			Load:          load,
		})
		if limit > 0 && len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// formatMetrics renders the counters and timers of the in-memory sink.
func formatMetrics(inm *metrics.InmemSink) string {
	var out []string
	for _, interval := range inm.Data() {
		for name, v := range interval.Counters {
			out = append(out, fmt.Sprintf("%s|%d|%.3f", name, v.Count, v.Sum))
		}
		for name, v := range interval.Samples {
			out = append(out, fmt.Sprintf("%s|%d|%.3f", name, v.Count, v.Sum))
		}
	}
	if len(out) == 0 {
		return "No metrics collected"
	}
	sort.Strings(out)
	return formatList(append([]string{"Name|Count|Sum"}, out...))
}
