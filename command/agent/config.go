// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/hcl/token"
	"github.com/hashicorp/hostpool/helper/pointer"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Config is the configuration for the hostpool CLI.
type Config struct {
	// LogLevel is the level of the logs to put out
	LogLevel string `hcl:"log_level"`

	// LogJson enables log output in a JSON format
	LogJson bool `hcl:"log_json"`

	// LogIncludeLocation includes file and line information in each log line
	LogIncludeLocation bool `hcl:"log_include_location"`

	// Inventory is the default inventory file commands read from.
	Inventory string `hcl:"inventory"`

	// Allocator overrides the allocator settings stored with the inventory.
	Allocator *AllocatorConfig `hcl:"allocator"`

	// Telemetry is used to configure sending telemetry
	Telemetry *Telemetry `hcl:"telemetry"`

	// Files is the list of configuration files loaded, in load order
	Files []string `hcl:"-"`

	// ExtraKeysHCL is used by hcl to surface unexpected keys
	ExtraKeysHCL map[string][]token.Pos `hcl:",unusedKeyPositions" json:"-"`
}

// AllocatorConfig configures candidate selection.
type AllocatorConfig struct {
	// Spread overrides the spread policy of the inventory. When nil the
	// inventory's scheduler block decides, and an inventory without one
	// packs hosts.
	Spread *bool `hcl:"spread"`

	// ExtraKeysHCL is used by hcl to surface unexpected keys
	ExtraKeysHCL map[string][]token.Pos `hcl:",unusedKeyPositions" json:"-"`
}

// Merge is used to merge two allocator configs together.
func (a *AllocatorConfig) Merge(b *AllocatorConfig) *AllocatorConfig {
	result := *a

	if b.Spread != nil {
		result.Spread = pointer.Copy(b.Spread)
	}

	return &result
}

// SchedulerConfig returns the scheduler configuration to apply on top of
// base, or base itself when nothing is overridden.
func (a *AllocatorConfig) SchedulerConfig(base *structs.SchedulerConfiguration) *structs.SchedulerConfiguration {
	if a == nil || a.Spread == nil {
		return base
	}
	config := base.Copy()
	if config == nil {
		config = &structs.SchedulerConfiguration{}
	}
	config.SpreadEnabled = *a.Spread
	return config
}

// Telemetry is the telemetry configuration for the CLI.
type Telemetry struct {
	DisableHostname    bool          `hcl:"disable_hostname"`
	CollectionInterval string        `hcl:"collection_interval"`
	collectionInterval time.Duration `hcl:"-"`

	// DisableInmemSignal stops SIGUSR1 from dumping the in-memory metrics.
	DisableInmemSignal bool `hcl:"disable_inmem_signal"`

	// ExtraKeysHCL is used by hcl to surface unexpected keys
	ExtraKeysHCL map[string][]token.Pos `hcl:",unusedKeyPositions" json:"-"`
}

// Merge is used to merge two telemetry configs together.
func (a *Telemetry) Merge(b *Telemetry) *Telemetry {
	result := *a

	if b.DisableHostname {
		result.DisableHostname = true
	}
	if b.CollectionInterval != "" {
		result.CollectionInterval = b.CollectionInterval
	}
	if b.collectionInterval != 0 {
		result.collectionInterval = b.collectionInterval
	}
	if b.DisableInmemSignal {
		result.DisableInmemSignal = true
	}

	return &result
}

// DefaultConfig is the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "INFO",
		Allocator: &AllocatorConfig{},
		Telemetry: &Telemetry{
			CollectionInterval: "10s",
			collectionInterval: 10 * time.Second,
		},
	}
}

// Merge merges two configurations. Values set in b win.
func (c *Config) Merge(b *Config) *Config {
	result := *c

	if b.LogLevel != "" {
		result.LogLevel = b.LogLevel
	}
	if b.LogJson {
		result.LogJson = true
	}
	if b.LogIncludeLocation {
		result.LogIncludeLocation = true
	}
	if b.Inventory != "" {
		result.Inventory = b.Inventory
	}

	// Apply the allocator config
	if result.Allocator == nil && b.Allocator != nil {
		allocator := *b.Allocator
		result.Allocator = &allocator
	} else if b.Allocator != nil {
		result.Allocator = result.Allocator.Merge(b.Allocator)
	}

	// Apply the telemetry config
	if result.Telemetry == nil && b.Telemetry != nil {
		telemetry := *b.Telemetry
		result.Telemetry = &telemetry
	} else if b.Telemetry != nil {
		result.Telemetry = result.Telemetry.Merge(b.Telemetry)
	}

	// Merge config files lists
	result.Files = append(result.Files, b.Files...)

	return &result
}

// Validate returns an error if the configuration cannot be used.
func (c *Config) Validate() error {
	if c.LogLevel != "" && hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Telemetry != nil && c.Telemetry.collectionInterval < 0 {
		return fmt.Errorf("telemetry.collection_interval must be positive")
	}
	return nil
}

// LoadConfig loads the configuration at the given path, regardless if its
// a file or directory. Called for each -config to build up the runtime
// config value.
func LoadConfig(path string) (*Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		return LoadConfigDir(path)
	}

	cleaned := filepath.Clean(path)
	config, err := ParseConfigFile(cleaned)
	if err != nil {
		return nil, fmt.Errorf("Error loading %s: %w", cleaned, err)
	}

	config.Files = append(config.Files, cleaned)
	return config, nil
}

// LoadConfigDir loads all the configurations in the given directory
// in alphabetical order.
func LoadConfigDir(dir string) (*Config, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf(
			"configuration path must be a directory: %s", dir)
	}

	var files []string
	err = nil
	for err != io.EOF {
		var fis []os.FileInfo
		fis, err = f.Readdir(128)
		if err != nil && err != io.EOF {
			return nil, err
		}

		for _, fi := range fis {
			// Ignore directories
			if fi.IsDir() {
				continue
			}

			// Only care about files that are valid to load.
			name := fi.Name()
			skip := true
			if strings.HasSuffix(name, ".hcl") {
				skip = false
			} else if strings.HasSuffix(name, ".json") {
				skip = false
			}
			if skip || isTemporaryFile(name) {
				continue
			}

			path := filepath.Join(dir, name)
			files = append(files, path)
		}
	}

	// Fast-path if we have no files
	if len(files) == 0 {
		return &Config{}, nil
	}

	sort.Strings(files)

	var result *Config
	for _, f := range files {
		config, err := ParseConfigFile(f)
		if err != nil {
			return nil, fmt.Errorf("Error loading %s: %w", f, err)
		}
		config.Files = append(config.Files, f)

		if result == nil {
			result = config
		} else {
			result = result.Merge(config)
		}
	}

	return result, nil
}

// isTemporaryFile returns true or false depending on whether the
// provided file name is a temporary file for the following editors:
// emacs or vim.
func isTemporaryFile(name string) bool {
	return strings.HasSuffix(name, "~") || // vim
		strings.HasPrefix(name, ".#") || // emacs
		(strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#")) // emacs
}
