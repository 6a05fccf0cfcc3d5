// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// CandidateStore is the storage the allocator reads candidates from. The
// state store and its snapshots implement it. Stores that can also take a
// snapshot are pinned once per invocation, so the configuration and the
// query observe the same point in time.
type CandidateStore interface {
	// SchedulerConfig returns the allocator configuration. A nil
	// configuration means the defaults apply.
	SchedulerConfig() (uint64, *structs.SchedulerConfiguration, error)

	// CandidateRows executes a planned query, returning a lazy iterator
	// that holds the store's read transaction open until it is closed.
	CandidateRows(query *structs.CandidateQuery) (structs.CandidateRowIterator, error)
}

// snapshotter is implemented by stores that can pin a point in time view.
type snapshotter interface {
	Snapshot() (*state.StateSnapshot, error)
}
