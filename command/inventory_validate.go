// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"errors"
	"fmt"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hostpool/nomad/inventory"
	"github.com/posener/complete"
)

type InventoryValidateCommand struct {
	Meta
}

func (c *InventoryValidateCommand) Help() string {
	helpText := `
Usage: hostpool inventory validate [options] <path>

  Checks that an inventory file parses and that every reference in it
  resolves. Each problem found is reported, and a summary of the objects in
  the inventory is printed when it is valid.

General Options:

  ` + generalOptionsUsage(FlagSetNone)
	return strings.TrimSpace(helpText)
}

func (c *InventoryValidateCommand) Synopsis() string {
	return "Check an inventory file for errors"
}

func (c *InventoryValidateCommand) AutocompleteFlags() complete.Flags {
	return c.Meta.AutocompleteFlags(FlagSetNone)
}

func (c *InventoryValidateCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictOr(
		complete.PredictFiles("*.hcl"),
		complete.PredictFiles("*.json"),
	)
}

func (c *InventoryValidateCommand) Name() string { return "inventory validate" }

func (c *InventoryValidateCommand) Run(args []string) int {
	flags := c.Meta.FlagSet(c.Name(), FlagSetNone)
	flags.Usage = func() { c.Ui.Output(c.Help()) }

	if err := flags.Parse(args); err != nil {
		return 1
	}

	// Check that we got exactly one argument
	args = flags.Args()
	if len(args) != 1 {
		c.Ui.Error("This command takes one argument: <path>")
		c.Ui.Error(commandErrorText(c))
		return 1
	}
	path := args[0]

	inv, err := inventory.ParseFile(path)
	if err == nil {
		err = inv.Validate()
	}
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Inventory %s is invalid:", path))
		var mErr *multierror.Error
		if errors.As(err, &mErr) {
			for _, e := range mErr.Errors {
				c.Ui.Error(fmt.Sprintf("  * %s", e))
			}
		} else {
			c.Ui.Error(fmt.Sprintf("  * %s", err))
		}
		return 1
	}

	stats := inv.Stats()
	c.Ui.Output(fmt.Sprintf("Inventory %s is valid\n", path))
	c.Ui.Output(formatKV([]string{
		fmt.Sprintf("Agents|%d", stats.Agents),
		fmt.Sprintf("Hosts|%d", stats.Hosts),
		fmt.Sprintf("Storage Pools|%d", stats.StoragePools),
		fmt.Sprintf("Storage Pool Host Maps|%d", stats.StoragePoolHostMaps),
		fmt.Sprintf("Instances|%d", stats.Instances),
		fmt.Sprintf("Instance Host Maps|%d", stats.InstanceHostMaps),
	}))
	return 0
}
