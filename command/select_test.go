// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/cli"
	"github.com/hashicorp/hostpool/ci"
	"github.com/shoenig/test/must"
)

const fleetInventory = "test-fixtures/fleet.hcl"

// runSelect runs the select command with -json and returns the candidates
// as host/pool pairs, in order.
func runSelect(t *testing.T, args ...string) []string {
	t.Helper()

	ui := cli.NewMockUi()
	cmd := &SelectCommand{Meta: Meta{Ui: ui}}
	code := cmd.Run(append([]string{"-json"}, args...))
	must.Eq(t, 0, code, must.Sprintf("stderr: %s", ui.ErrorWriter.String()))

	var stubs []*CandidateStub
	must.NoError(t, json.Unmarshal([]byte(ui.OutputWriter.String()), &stubs))

	pairs := make([]string, 0, len(stubs))
	for _, s := range stubs {
		pairs = append(pairs, s.HostID+"/"+s.StoragePoolID)
	}
	return pairs
}

func TestSelectCommand_Implements(t *testing.T) {
	ci.Parallel(t)
	var _ cli.Command = &SelectCommand{}
}

func TestSelectCommand_Fails(t *testing.T) {
	ci.Parallel(t)

	cases := []struct {
		name string
		args []string
		err  string
	}{
		{
			name: "extra args",
			args: []string{"-inventory", fleetInventory, "h1"},
			err:  "This command takes no arguments",
		},
		{
			name: "bad mode",
			args: []string{"-inventory", fleetInventory, "-mode", "burst"},
			err:  "Invalid -mode",
		},
		{
			name: "negative limit",
			args: []string{"-inventory", fleetInventory, "-limit", "-1"},
			err:  "-limit must not be negative",
		},
		{
			name: "missing inventory file",
			args: []string{"-inventory", "test-fixtures/nope.hcl"},
			err:  "Error loading inventory",
		},
		{
			name: "invalid inventory",
			args: []string{"-inventory", "test-fixtures/invalid.hcl"},
			err:  `unknown host "h9"`,
		},
		{
			name: "bad log level",
			args: []string{"-inventory", fleetInventory, "-log-level", "loud"},
			err:  "invalid log level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ui := cli.NewMockUi()
			cmd := &SelectCommand{Meta: Meta{Ui: ui}}
			code := cmd.Run(tc.args)
			must.Eq(t, 1, code)
			must.StrContains(t, ui.ErrorWriter.String(), tc.err)
		})
	}
}

func TestSelectCommand_Placement(t *testing.T) {
	ci.Parallel(t)

	// h2 carries no instances so it leads. h3 has an inactive agent and h4
	// is inactive, so neither is offered.
	must.Eq(t, []string{"h2/p1", "h2/p2", "h1/p1"},
		runSelect(t, "-inventory", fleetInventory))

	must.Eq(t, []string{"h1/p1"},
		runSelect(t, "-inventory", fleetInventory, "-host", "h1,h3"))

	must.Eq(t, []string{"h2/p1", "h2/p2"},
		runSelect(t, "-inventory", fleetInventory, "-compute", "11"))

	must.Eq(t, []string{"h1/p1"},
		runSelect(t, "-inventory", fleetInventory, "-account", "acct-1"))

	must.SliceEmpty(t, runSelect(t, "-inventory", fleetInventory, "-kind", "y"))
}

func TestSelectCommand_Pool(t *testing.T) {
	ci.Parallel(t)

	// The inventory enables spread, so the host with the most free compute
	// comes first.
	must.Eq(t, []string{"h2/p1", "h2/p2", "h1/p1"},
		runSelect(t, "-inventory", fleetInventory, "-mode", "pool"))

	must.Eq(t, []string{"h1/p1", "h2/p1", "h2/p2"},
		runSelect(t, "-inventory", fleetInventory, "-mode", "pool", "-spread=false"))
}

func TestSelectCommand_ConfigOverridesSpread(t *testing.T) {
	ci.Parallel(t)

	config := filepath.Join(t.TempDir(), "hostpool.hcl")
	must.NoError(t, os.WriteFile(config, []byte(`
allocator {
  spread = false
}
telemetry {
  disable_inmem_signal = true
}
`), 0o644))

	must.Eq(t, []string{"h1/p1", "h2/p1", "h2/p2"},
		runSelect(t, "-config", config, "-inventory", fleetInventory, "-mode", "pool"))

	// The flag wins over the configuration.
	must.Eq(t, []string{"h2/p1", "h2/p2", "h1/p1"},
		runSelect(t, "-config", config, "-inventory", fleetInventory, "-mode", "pool", "-spread=true"))
}

func TestSelectCommand_Limit(t *testing.T) {
	ci.Parallel(t)

	must.Eq(t, []string{"h2/p1", "h2/p2"},
		runSelect(t, "-inventory", fleetInventory, "-limit", "2"))
}

// Not parallel: -stats reads the global metrics sink, which every select
// run replaces.
func TestSelectCommand_Output(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := &SelectCommand{Meta: Meta{Ui: ui}}
	code := cmd.Run([]string{"-inventory", fleetInventory, "-volume", "v1,v2", "-stats"})
	must.Eq(t, 0, code)

	out := ui.OutputWriter.String()
	must.StrContains(t, out, "Candidates for volumes v1, v2")
	must.StrContains(t, out, "Host ID")

	lines := strings.Split(out, "\n")
	var rows [][]string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 4 && strings.HasPrefix(fields[0], "h") {
			rows = append(rows, fields)
		}
	}
	must.Eq(t, [][]string{
		{"h2", "p1", "50", "0"},
		{"h2", "p2", "50", "0"},
		{"h1", "p1", "10", "1"},
	}, rows)

	must.StrContains(t, out, "Allocator Metrics")
	must.StrContains(t, out, "hostpool.allocator.rows")
}

func TestSelectCommand_NoCandidates(t *testing.T) {
	ci.Parallel(t)

	ui := cli.NewMockUi()
	cmd := &SelectCommand{Meta: Meta{Ui: ui}}
	code := cmd.Run([]string{"-inventory", fleetInventory, "-host", "h4"})
	must.Eq(t, 0, code)
	must.StrContains(t, ui.OutputWriter.String(), "No candidates found")
}
