// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"strings"

	"github.com/hashicorp/cli"
)

type HostCommand struct {
	Meta
}

func (c *HostCommand) Help() string {
	helpText := `
Usage: hostpool host <subcommand> [options] [args]

  This command groups subcommands for inspecting the hosts of an inventory.
  Hosts are offered as candidates when they are schedulable, their agent is
  active and they have at least one live storage pool.

  List hosts with their load and eligibility:

      $ hostpool host list -inventory=fleet.hcl

  Please see the individual subcommand help for detailed usage information.
`

	return strings.TrimSpace(helpText)
}

func (c *HostCommand) Synopsis() string {
	return "Inspect inventory hosts"
}

func (c *HostCommand) Name() string { return "host" }

func (c *HostCommand) Run(args []string) int {
	return cli.RunResultHelp
}
