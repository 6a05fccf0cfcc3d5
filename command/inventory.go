// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"strings"

	"github.com/hashicorp/cli"
)

type InventoryCommand struct {
	Meta
}

func (c *InventoryCommand) Help() string {
	helpText := `
Usage: hostpool inventory <subcommand> [options] [args]

  This command groups subcommands for working with inventory files. An
  inventory describes the agents, hosts, storage pools and instances the
  allocator selects from, in HCL or JSON.

  Validate an inventory file:

      $ hostpool inventory validate fleet.hcl

  Write a snapshot of an inventory:

      $ hostpool inventory snapshot -inventory=fleet.hcl fleet.snap

  Please see the individual subcommand help for detailed usage information.
`

	return strings.TrimSpace(helpText)
}

func (c *InventoryCommand) Synopsis() string {
	return "Interact with inventories"
}

func (c *InventoryCommand) Name() string { return "inventory" }

func (c *InventoryCommand) Run(args []string) int {
	return cli.RunResultHelp
}
