// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"os"

	"github.com/hashicorp/cli"
	colorable "github.com/mattn/go-colorable"
)

const (
	// EnvHostpoolCLINoColor is an env var that toggles colored UI output.
	EnvHostpoolCLINoColor = `HOSTPOOL_CLI_NO_COLOR`

	// EnvHostpoolCLIForceColor is an env var that forces colored UI output.
	EnvHostpoolCLIForceColor = `HOSTPOOL_CLI_FORCE_COLOR`

	// EnvHostpoolInventory is an env var naming the default inventory file.
	EnvHostpoolInventory = `HOSTPOOL_INVENTORY`
)

// NamedCommand is a interface to denote a commmand's name.
type NamedCommand interface {
	Name() string
}

// Commands returns the mapping of CLI commands for hostpool. The meta
// parameter lets you set meta options for all commands.
func Commands(metaPtr *Meta) map[string]cli.CommandFactory {
	if metaPtr == nil {
		metaPtr = new(Meta)
	}

	meta := *metaPtr
	if meta.Ui == nil {
		meta.Ui = &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      colorable.NewColorableStdout(),
			ErrorWriter: colorable.NewColorableStderr(),
		}
	}

	all := map[string]cli.CommandFactory{
		"host": func() (cli.Command, error) {
			return &HostCommand{
				Meta: meta,
			}, nil
		},
		"host list": func() (cli.Command, error) {
			return &HostListCommand{
				Meta: meta,
			}, nil
		},
		"inventory": func() (cli.Command, error) {
			return &InventoryCommand{
				Meta: meta,
			}, nil
		},
		"inventory snapshot": func() (cli.Command, error) {
			return &InventorySnapshotCommand{
				Meta: meta,
			}, nil
		},
		"inventory validate": func() (cli.Command, error) {
			return &InventoryValidateCommand{
				Meta: meta,
			}, nil
		},
		"pool": func() (cli.Command, error) {
			return &PoolCommand{
				Meta: meta,
			}, nil
		},
		"pool list": func() (cli.Command, error) {
			return &PoolListCommand{
				Meta: meta,
			}, nil
		},
		"select": func() (cli.Command, error) {
			return &SelectCommand{
				Meta: meta,
			}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{
				Meta: meta,
			}, nil
		},
	}

	return all
}
