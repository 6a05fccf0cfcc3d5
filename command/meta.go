// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/cli"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hostpool/command/agent"
	flaghelper "github.com/hashicorp/hostpool/helper/flags"
	"github.com/hashicorp/hostpool/nomad/inventory"
	"github.com/hashicorp/hostpool/nomad/state"
	isatty "github.com/mattn/go-isatty"
	"github.com/posener/complete"
)

// FlagSetFlags is an enum to define what flags are present in the
// default FlagSet returned by Meta.FlagSet.
type FlagSetFlags uint

const (
	FlagSetNone      FlagSetFlags = 0
	FlagSetConfig    FlagSetFlags = 1 << iota
	FlagSetInventory FlagSetFlags = 1 << iota
	FlagSetDefault                = FlagSetConfig | FlagSetInventory
)

// errNoInventory is returned when a command needs an inventory and none of
// -inventory, -snapshot, the config file or the environment names one.
var errNoInventory = errors.New("no inventory given, use -inventory or -snapshot")

// Meta contains the meta-options and functionality that nearly every
// hostpool command inherits.
type Meta struct {
	Ui cli.Ui

	// These are set by the command line flags.
	configPaths flaghelper.StringFlag
	inventory   string
	snapshot    string
	logLevel    string

	// Whether to not-colorize output
	noColor bool

	// Whether to force colorized output
	forceColor bool
}

// FlagSet returns a FlagSet with the common flags that every
// command implements. The exact behavior of FlagSet can be configured
// using the flags as the second parameter, for example to disable
// inventory settings on commands that don't talk to one.
func (m *Meta) FlagSet(n string, fs FlagSetFlags) *flag.FlagSet {
	f := flag.NewFlagSet(n, flag.ContinueOnError)

	if fs&FlagSetConfig != 0 {
		f.Var(&m.configPaths, "config", "")
		f.StringVar(&m.logLevel, "log-level", "", "")
	}
	if fs&FlagSetInventory != 0 {
		f.StringVar(&m.inventory, "inventory", "", "")
		f.StringVar(&m.snapshot, "snapshot", "", "")
	}

	f.BoolVar(&m.noColor, "no-color", false, "")
	f.BoolVar(&m.forceColor, "force-color", false, "")

	f.SetOutput(&uiErrorWriter{ui: m.Ui})

	return f
}

// AutocompleteFlags returns a set of flag completions for the given flag set.
func (m *Meta) AutocompleteFlags(fs FlagSetFlags) complete.Flags {
	if fs&FlagSetDefault == 0 {
		return nil
	}

	flags := complete.Flags{
		"-no-color":    complete.PredictNothing,
		"-force-color": complete.PredictNothing,
	}
	if fs&FlagSetConfig != 0 {
		flags["-config"] = complete.PredictOr(
			complete.PredictFiles("*.hcl"),
			complete.PredictFiles("*.json"),
			complete.PredictDirs("*"),
		)
		flags["-log-level"] = complete.PredictSet("TRACE", "DEBUG", "INFO", "WARN", "ERROR")
	}
	if fs&FlagSetInventory != 0 {
		flags["-inventory"] = complete.PredictOr(
			complete.PredictFiles("*.hcl"),
			complete.PredictFiles("*.json"),
		)
		flags["-snapshot"] = complete.PredictFiles("*")
	}
	return flags
}

// loadConfig builds the runtime configuration: the defaults, then every
// -config path in order, then the flag overrides.
func (m *Meta) loadConfig() (*agent.Config, error) {
	config := agent.DefaultConfig()
	for _, path := range m.configPaths {
		current, err := agent.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = config.Merge(current)
	}

	if m.logLevel != "" {
		config.LogLevel = strings.ToUpper(m.logLevel)
	}
	if m.inventory != "" {
		config.Inventory = m.inventory
	}
	if config.Inventory == "" {
		config.Inventory = os.Getenv(EnvHostpoolInventory)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// logger returns a logger writing through the UI's error stream.
func (m *Meta) logger(config *agent.Config) hclog.InterceptLogger {
	return agent.NewLogger(config, &uiErrorWriter{ui: m.Ui})
}

// newStateStore loads the inventory, or restores the snapshot, named by
// the flags and configuration. Allocator settings from the configuration
// are applied on top of whatever the inventory carries.
func (m *Meta) newStateStore(config *agent.Config, logger hclog.Logger) (*state.StateStore, error) {
	storeConfig := &state.StateStoreConfig{Logger: logger}

	var store *state.StateStore
	switch {
	case m.snapshot != "":
		f, err := os.Open(m.snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()

		store, err = state.RestoreSnapshot(f, storeConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to restore snapshot %s: %w", m.snapshot, err)
		}
	case config.Inventory != "":
		inv, err := inventory.ParseFile(config.Inventory)
		if err != nil {
			return nil, err
		}
		store, err = inv.NewStateStore(storeConfig)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errNoInventory
	}

	_, base, err := store.SchedulerConfig()
	if err != nil {
		return nil, err
	}
	if override := config.Allocator.SchedulerConfig(base); override != base {
		index, err := store.LatestIndex()
		if err != nil {
			return nil, err
		}
		if err := store.SchedulerSetConfig(index+1, override); err != nil {
			return nil, fmt.Errorf("failed to apply allocator config: %w", err)
		}
	}

	return store, nil
}

// SetupUi wraps the UI in color output unless it has been disabled or
// stdout is not a terminal.
func (m *Meta) SetupUi(args []string) {
	noColor := os.Getenv(EnvHostpoolCLINoColor) != ""
	forceColor := os.Getenv(EnvHostpoolCLIForceColor) != ""

	for _, arg := range args {
		// Check if color is set
		if arg == "-no-color" || arg == "--no-color" {
			noColor = true
		} else if arg == "-force-color" || arg == "--force-color" {
			forceColor = true
		}
	}

	m.noColor = noColor
	m.forceColor = forceColor

	isTerminal := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	if noColor || (!forceColor && !isTerminal) {
		return
	}

	m.Ui = &cli.ColoredUi{
		ErrorColor: cli.UiColorRed,
		WarnColor:  cli.UiColorYellow,
		InfoColor:  cli.UiColorGreen,
		Ui:         m.Ui,
	}
}

// generalOptionsUsage returns the help string for the global options.
func generalOptionsUsage(usageOpts FlagSetFlags) string {
	helpText := `
  -config=<path>
    The path to either a single config file or a directory of config
    files to use. Can be specified multiple times; later files win.

  -log-level=<level>
    Specify the verbosity level of the CLI's logs. Valid values include
    TRACE, DEBUG, INFO, WARN and ERROR, in decreasing order of verbosity.
    Overrides the log_level config value.
`

	inventoryText := `
  -inventory=<path>
    The path to an HCL or JSON inventory file describing agents, hosts,
    storage pools and instances. Overrides the inventory config value and
    the HOSTPOOL_INVENTORY environment variable.

  -snapshot=<path>
    Read the inventory from a snapshot written by 'hostpool inventory
    snapshot' instead of an inventory file.
`

	colorText := `
  -no-color
    Disables colored command output. Alternatively, HOSTPOOL_CLI_NO_COLOR
    may be set. This option takes precedence over -force-color.

  -force-color
    Forces colored command output. This can be used in cases where the usual
    terminal detection fails. Alternatively, HOSTPOOL_CLI_FORCE_COLOR may be set.
`

	var out string
	if usageOpts&FlagSetConfig != 0 {
		out += helpText
	}
	if usageOpts&FlagSetInventory != 0 {
		out += inventoryText
	}
	out += colorText

	return strings.TrimSpace(out)
}
