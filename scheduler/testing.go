// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"testing"

	"github.com/hashicorp/hostpool/helper/testlog"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Harness is a lightweight testing harness for the allocator. It wraps a
// state store the test populates, and hands out allocators reading from
// snapshots of it.
type Harness struct {
	t     testing.TB
	State *state.StateStore

	nextIndex uint64
}

// NewHarness returns a harness with an empty state store.
func NewHarness(t testing.TB) *Harness {
	return &Harness{
		t:         t,
		State:     state.TestStateStore(t),
		nextIndex: 1,
	}
}

// NextIndex returns the next index to write at.
func (h *Harness) NextIndex() uint64 {
	idx := h.nextIndex
	h.nextIndex++
	return idx
}

// Upsert writes an inventory into the state store.
func (h *Harness) Upsert(inv *state.TestInventory) {
	h.t.Helper()
	inv.Upsert(h.t, h.State)

	latest, err := h.State.LatestIndex()
	if err != nil {
		h.t.Fatalf("err: %v", err)
	}
	h.nextIndex = latest + 1
}

// SetSpread stores the spread policy.
func (h *Harness) SetSpread(spread bool) {
	h.t.Helper()
	config := &structs.SchedulerConfiguration{SpreadEnabled: spread}
	if err := h.State.SchedulerSetConfig(h.NextIndex(), config); err != nil {
		h.t.Fatalf("err: %v", err)
	}
}

// Allocator returns an allocator reading from a fresh snapshot.
func (h *Harness) Allocator() *Allocator {
	h.t.Helper()
	snap, err := h.State.Snapshot()
	if err != nil {
		h.t.Fatalf("err: %v", err)
	}
	return NewAllocator(testlog.HCLogger(h.t), snap)
}

// Select runs one invocation against a fresh snapshot and drains it.
func (h *Harness) Select(opts *structs.QueryOptions, mode structs.CandidateMode) []structs.CandidateRow {
	h.t.Helper()

	cursor, err := h.Allocator().SelectCandidates(context.Background(), nil, opts, mode)
	if err != nil {
		h.t.Fatalf("err: %v", err)
	}
	rows, err := cursor.Collect()
	if err != nil {
		h.t.Fatalf("err: %v", err)
	}

	out := make([]structs.CandidateRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out
}
