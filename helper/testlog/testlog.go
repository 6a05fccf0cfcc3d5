// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package testlog creates loggers backed by testing.T to ease logging in
// tests.
package testlog

import (
	"io"
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
)

// Writer implements io.Writer on top of a testing.TB.
type Writer struct {
	t testing.TB
}

// NewWriter returns a writer that logs every write through t.
func NewWriter(t testing.TB) io.Writer {
	return &Writer{t: t}
}

// Write to an underlying testing.TB. Never returns an error.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Logf("%s", p)
	return len(p), nil
}

// HCLogger returns a new test hc-logger.
//
// Default log level is TRACE. Set HOSTPOOL_TEST_LOG_LEVEL for custom log
// level.
func HCLogger(t testing.TB) hclog.InterceptLogger {
	level := hclog.Trace
	envLogLevel := os.Getenv("HOSTPOOL_TEST_LOG_LEVEL")
	if envLogLevel != "" {
		level = hclog.LevelFromString(envLogLevel)
	}

	opts := &hclog.LoggerOptions{
		Level:           level,
		Output:          NewWriter(t),
		IncludeLocation: true,
	}
	return hclog.NewInterceptLogger(opts)
}
