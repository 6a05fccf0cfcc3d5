// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/token"
	"github.com/hashicorp/hostpool/helper"
)

// ParseConfigFile returns an agent.Config from parsed from a file.
func ParseConfigFile(path string) (*Config, error) {
	// slurp
	var buf bytes.Buffer
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, err
	}

	// parse
	c := &Config{
		Allocator: &AllocatorConfig{},
		Telemetry: &Telemetry{},
	}

	err = hcl.Decode(c, buf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, err)
	}

	// convert strings to time.Durations
	tds := []durationConversionMap{
		{"telemetry.collection_interval", &c.Telemetry.collectionInterval, &c.Telemetry.CollectionInterval},
	}
	if err := convertDurations(tds); err != nil {
		return nil, err
	}

	// report unexpected keys
	if err := extraKeys(c); err != nil {
		return nil, err
	}

	return c, nil
}

// durationConversionMap holds args for one duration conversion
type durationConversionMap struct {
	targetFieldPath string
	targetField     *time.Duration
	sourceField     *string
}

// convertDurations parses the duration strings specified in the config files
// into time.Durations
func convertDurations(xs []durationConversionMap) error {
	for _, x := range xs {
		if x.targetField != nil && x.sourceField != nil && *x.sourceField != "" {
			d, err := time.ParseDuration(*x.sourceField)
			if err != nil {
				return fmt.Errorf("%s can't parse time duration %s", x.targetFieldPath, *x.sourceField)
			}

			*x.targetField = d
		}
	}

	return nil
}

func extraKeys(c *Config) error {
	// hcl leaves behind extra keys when parsing JSON. These keys
	// are kept on the top level, taken from the keys of the blocks.
	// Clean up before looking for extra keys.
	for _, k := range []string{"allocator", "telemetry"} {
		helper.RemoveEqualFoldKey(c.ExtraKeysHCL, k)
	}

	var mErr *multierror.Error
	mErr = appendExtraKeys(mErr, "", c.ExtraKeysHCL)
	mErr = appendExtraKeys(mErr, "allocator.", c.Allocator.ExtraKeysHCL)
	mErr = appendExtraKeys(mErr, "telemetry.", c.Telemetry.ExtraKeysHCL)
	return mErr.ErrorOrNil()
}

// appendExtraKeys reports each unused key in name order.
func appendExtraKeys(mErr *multierror.Error, prefix string, keys map[string][]token.Pos) *multierror.Error {
	for _, k := range slices.Sorted(maps.Keys(keys)) {
		if pos := keys[k]; len(pos) > 0 && pos[0].Line > 0 {
			mErr = multierror.Append(mErr, fmt.Errorf("unexpected key %s%s on line %d", prefix, k, pos[0].Line))
		} else {
			mErr = multierror.Append(mErr, fmt.Errorf("unexpected key %s%s", prefix, k))
		}
	}
	return mErr
}
