// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"fmt"
	"os"
	"strings"

	"github.com/posener/complete"
)

type InventorySnapshotCommand struct {
	Meta
}

func (c *InventorySnapshotCommand) Help() string {
	helpText := `
Usage: hostpool inventory snapshot [options] <file>

  Loads an inventory and writes a point-in-time snapshot of it to <file>.
  Allocator settings from the configuration are applied before the snapshot
  is taken. The snapshot can be read back by any command with -snapshot.

General Options:

  ` + generalOptionsUsage(FlagSetDefault)
	return strings.TrimSpace(helpText)
}

func (c *InventorySnapshotCommand) Synopsis() string {
	return "Write a snapshot of an inventory"
}

func (c *InventorySnapshotCommand) AutocompleteFlags() complete.Flags {
	return c.Meta.AutocompleteFlags(FlagSetDefault)
}

func (c *InventorySnapshotCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictFiles("*")
}

func (c *InventorySnapshotCommand) Name() string { return "inventory snapshot" }

func (c *InventorySnapshotCommand) Run(args []string) int {
	flags := c.Meta.FlagSet(c.Name(), FlagSetDefault)
	flags.Usage = func() { c.Ui.Output(c.Help()) }

	if err := flags.Parse(args); err != nil {
		return 1
	}

	// Check that we got exactly one argument
	args = flags.Args()
	if len(args) != 1 {
		c.Ui.Error("This command takes one argument: <file>")
		c.Ui.Error(commandErrorText(c))
		return 1
	}
	path := args[0]

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

	snap, err := store.Snapshot()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error taking snapshot: %s", err))
		return 1
	}
	index, err := snap.LatestIndex()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error taking snapshot: %s", err))
		return 1
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error creating snapshot file: %s", err))
		return 1
	}
	defer os.Remove(tmp)

	if err := snap.Persist(f); err != nil {
		f.Close()
		c.Ui.Error(fmt.Sprintf("Error writing snapshot: %s", err))
		return 1
	}
	if err := f.Close(); err != nil {
		c.Ui.Error(fmt.Sprintf("Error writing snapshot: %s", err))
		return 1
	}
	if err := os.Rename(tmp, path); err != nil {
		c.Ui.Error(fmt.Sprintf("Error writing snapshot: %s", err))
		return 1
	}

	c.Ui.Output(fmt.Sprintf("State file written to %s at index %d", path, index))
	return 0
}
