// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"time"

	"github.com/hashicorp/go-metrics"
)

// SetupTelemetry installs the global metrics sink. Metrics are kept in
// memory and, unless disabled, dumped to stderr on SIGUSR1.
func SetupTelemetry(config *Telemetry) (*metrics.InmemSink, error) {
	if config == nil {
		config = DefaultConfig().Telemetry
	}

	interval := config.collectionInterval
	if interval == 0 {
		interval = 10 * time.Second
	}

	inm := metrics.NewInmemSink(interval, time.Minute)
	if !config.DisableInmemSignal {
		metrics.DefaultInmemSignal(inm)
	}

	metricsConf := metrics.DefaultConfig("hostpool")
	metricsConf.EnableHostname = !config.DisableHostname
	metricsConf.EnableHostnameLabel = false

	if _, err := metrics.NewGlobal(metricsConf, inm); err != nil {
		return nil, err
	}
	return inm, nil
}
