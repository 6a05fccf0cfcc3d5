// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"strings"

	"github.com/hashicorp/cli"
)

type PoolCommand struct {
	Meta
}

func (c *PoolCommand) Help() string {
	helpText := `
Usage: hostpool pool <subcommand> [options] [args]

  This command groups subcommands for inspecting the storage pools of an
  inventory.

  List storage pools and the hosts they are attached to:

      $ hostpool pool list -inventory=fleet.hcl

  Please see the individual subcommand help for detailed usage information.
`

	return strings.TrimSpace(helpText)
}

func (c *PoolCommand) Synopsis() string {
	return "Inspect inventory storage pools"
}

func (c *PoolCommand) Name() string { return "pool" }

func (c *PoolCommand) Run(args []string) int {
	return cli.RunResultHelp
}
