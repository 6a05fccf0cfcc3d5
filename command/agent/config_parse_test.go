// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/hcl/token"
	"github.com/hashicorp/hostpool/ci"
	"github.com/hashicorp/hostpool/helper/pointer"
	"github.com/shoenig/test/must"
)

var basicConfig = &Config{
	LogLevel:           "DEBUG",
	LogJson:            true,
	LogIncludeLocation: true,
	Inventory:          "/etc/hostpool/inventory.hcl",
	Allocator: &AllocatorConfig{
		Spread: pointer.Of(true),
	},
	Telemetry: &Telemetry{
		DisableHostname:    true,
		CollectionInterval: "3s",
		collectionInterval: 3 * time.Second,
		DisableInmemSignal: true,
	},
}

func TestConfig_Parse(t *testing.T) {
	ci.Parallel(t)

	for _, file := range []string{"basic.hcl", "basic.json"} {
		t.Run(file, func(t *testing.T) {
			path, err := filepath.Abs(filepath.Join("./testdata", file))
			must.NoError(t, err)

			actual, err := ParseConfigFile(path)
			must.NoError(t, err)

			// ExtraKeysHCL is only used for error reporting.
			actual.ExtraKeysHCL = nil
			actual.Allocator.ExtraKeysHCL = nil
			actual.Telemetry.ExtraKeysHCL = nil

			must.Eq(t, basicConfig, actual, must.Cmp(cmpUnexported))
		})
	}
}

func TestConfig_ParseExtraKeys(t *testing.T) {
	ci.Parallel(t)

	_, err := ParseConfigFile(filepath.Join("testdata", "extra-keys.hcl"))
	must.ErrorContains(t, err, "unexpected key region")
	must.ErrorContains(t, err, "unexpected key allocator.algorithm")
	must.ErrorContains(t, err, "unexpected key telemetry.sampling")
	must.StrNotContains(t, err.Error(), "log_level")

	var mErr *multierror.Error
	must.True(t, errors.As(err, &mErr))

	// Unknown keys fail loading too, not only parsing.
	_, err = LoadConfig(filepath.Join("testdata", "extra-keys.hcl"))
	must.ErrorContains(t, err, "unexpected key region")
}

func TestConfig_ParseExtraKeysJSON(t *testing.T) {
	ci.Parallel(t)

	_, err := ParseConfigFile(filepath.Join("testdata", "extra-keys.json"))
	must.ErrorContains(t, err, "unexpected key region")
	must.StrNotContains(t, err.Error(), "unexpected key allocator ")
	must.StrNotContains(t, err.Error(), "unexpected key telemetry ")
}

func TestConfig_ParseBadDuration(t *testing.T) {
	ci.Parallel(t)

	_, err := ParseConfigFile(filepath.Join("testdata", "bad-duration.hcl"))
	must.ErrorContains(t, err, "telemetry.collection_interval can't parse time duration often")
}

func TestConfig_LoadConfigDir(t *testing.T) {
	ci.Parallel(t)

	config, err := LoadConfig(filepath.Join("testdata", "dir"))
	must.NoError(t, err)

	must.Eq(t, "TRACE", config.LogLevel)
	must.Eq(t, 5*time.Second, config.Telemetry.collectionInterval)
	must.NotNil(t, config.Allocator.Spread)
	must.False(t, *config.Allocator.Spread)
	must.Eq(t, []string{
		filepath.Join("testdata", "dir", "01-base.hcl"),
		filepath.Join("testdata", "dir", "02-override.json"),
	}, config.Files)
}

func TestConfig_LoadConfigFile(t *testing.T) {
	ci.Parallel(t)

	path := filepath.Join("testdata", "basic.hcl")
	config, err := LoadConfig(path)
	must.NoError(t, err)
	must.Eq(t, []string{path}, config.Files)

	_, err = LoadConfig(filepath.Join("testdata", "missing.hcl"))
	must.Error(t, err)
}

func TestConfig_LoadConfigDirEmpty(t *testing.T) {
	ci.Parallel(t)

	config, err := LoadConfigDir(t.TempDir())
	must.NoError(t, err)
	must.Eq(t, &Config{}, config, must.Cmp(cmpUnexported))
}

func TestConfig_appendExtraKeys(t *testing.T) {
	ci.Parallel(t)

	err := appendExtraKeys(nil, "allocator.", map[string][]token.Pos{
		"zeta":  {{Line: 4}},
		"alpha": nil,
	}).ErrorOrNil()
	must.ErrorContains(t, err, "unexpected key allocator.alpha")
	must.ErrorContains(t, err, "unexpected key allocator.zeta on line 4")

	var mErr *multierror.Error
	must.True(t, errors.As(err, &mErr))
	must.SliceLen(t, 2, mErr.Errors)
	must.EqError(t, mErr.Errors[0], "unexpected key allocator.alpha")

	must.NoError(t, appendExtraKeys(nil, "", nil).ErrorOrNil())
}
