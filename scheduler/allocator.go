// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Allocator selects candidate (host, storage pool) pairs for placements.
// It only reads from its store and holds no state between invocations, so
// one Allocator may be shared by concurrent callers as long as each uses
// its own Cursor.
type Allocator struct {
	logger  hclog.Logger
	state   CandidateStore
	planner *Planner
}

// NewAllocator returns an allocator reading from state.
func NewAllocator(logger hclog.Logger, state CandidateStore) *Allocator {
	logger = logger.Named("allocator")
	return &Allocator{
		logger:  logger,
		state:   state,
		planner: NewPlanner(logger),
	}
}

// SelectCandidates returns a cursor over the candidates matching opts in
// the given mode. The query is planned and executed on the first call to
// Cursor.Next, so storage errors surface there rather than here. The
// volume IDs are carried on the cursor for the consumer and do not affect
// the candidates.
func (a *Allocator) SelectCandidates(ctx context.Context, volumeIDs []string,
	opts *structs.QueryOptions, mode structs.CandidateMode) (*Cursor, error) {

	switch mode {
	case structs.CandidateModePlacement, structs.CandidateModePool:
	default:
		return nil, fmt.Errorf("%w: %s", structs.ErrUnknownCandidateMode, mode)
	}

	// Callers may reuse their options and volume slice once this returns.
	opts = opts.Normalize()
	volumes := slices.Clone(volumeIDs)

	logger := a.logger.With("mode", mode)
	open := func() (structs.CandidateRowIterator, error) {
		return a.execute(logger, opts, mode)
	}
	return newCursor(ctx, logger, mode, volumes, open), nil
}

// IteratorHosts returns a cursor over placement candidates: hosts ordered
// by load, least busy first, each with its eligible storage pools.
func (a *Allocator) IteratorHosts(ctx context.Context, volumeIDs []string, opts *structs.QueryOptions) (*Cursor, error) {
	return a.SelectCandidates(ctx, volumeIDs, opts, structs.CandidateModePlacement)
}

// IteratorPools returns a cursor over pool-only candidates, ordered by free
// compute according to the configured spread policy.
func (a *Allocator) IteratorPools(ctx context.Context, volumeIDs []string, opts *structs.QueryOptions) (*Cursor, error) {
	return a.SelectCandidates(ctx, volumeIDs, opts, structs.CandidateModePool)
}

// execute pins the store, reads the spread policy, plans the query and
// opens it against the pinned view.
func (a *Allocator) execute(logger hclog.Logger, opts *structs.QueryOptions,
	mode structs.CandidateMode) (structs.CandidateRowIterator, error) {

	store, err := a.pin()
	if err != nil {
		return nil, err
	}

	var spread bool
	if mode == structs.CandidateModePool {
		spread, err = spreadEnabled(store)
		if err != nil {
			return nil, err
		}
	}

	query, err := a.planner.Plan(opts, mode, spread)
	if err != nil {
		return nil, err
	}

	iter, err := store.CandidateRows(query)
	if err != nil {
		// A rejected query is a planning error, not an outage.
		if errors.Is(err, structs.ErrInvalidCandidateQuery) {
			return nil, err
		}
		return nil, structs.WrapStorageUnavailable(err)
	}

	logger.Trace("opened candidate query", "query", query, "spread", spread)
	return iter, nil
}

// pin returns a view of the store fixed for one invocation. Snapshots are
// already fixed and stores that cannot snapshot are read directly.
func (a *Allocator) pin() (CandidateStore, error) {
	switch store := a.state.(type) {
	case *state.StateSnapshot:
		return store, nil
	case snapshotter:
		snap, err := store.Snapshot()
		if err != nil {
			return nil, structs.WrapStorageUnavailable(fmt.Errorf("failed to snapshot state: %w", err))
		}
		return snap, nil
	default:
		return a.state, nil
	}
}

// spreadEnabled reads the spread policy. A store without a configuration
// packs hosts.
func spreadEnabled(store CandidateStore) (bool, error) {
	_, config, err := store.SchedulerConfig()
	if err != nil {
		return false, structs.WrapStorageUnavailable(fmt.Errorf("failed to read scheduler config: %w", err))
	}
	if config == nil {
		return false, nil
	}
	return config.SpreadEnabled, nil
}
