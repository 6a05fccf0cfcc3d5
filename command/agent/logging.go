// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// NewLogger returns the root logger for the CLI, writing to out at the
// configured level and format.
func NewLogger(config *Config, out io.Writer) hclog.InterceptLogger {
	level := hclog.LevelFromString(config.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:            "hostpool",
		Level:           level,
		Output:          out,
		JSONFormat:      config.LogJson,
		IncludeLocation: config.LogIncludeLocation,
	})
}
