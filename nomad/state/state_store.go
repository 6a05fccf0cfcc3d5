// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// StateStoreConfig is used to configure a new state store
type StateStoreConfig struct {
	// Logger is used to output the state store's logs
	Logger hclog.Logger
}

// The StateStore is responsible for maintaining all the inventory the
// allocator reads: hosts, agents, storage pools, instances and the
// associations between them. It is backed by MemDB and every read happens
// inside a single transaction, so a query observes one consistent view.
type StateStore struct {
	logger hclog.Logger
	db     *changeTrackerDB

	// config is the passed in configuration
	config *StateStoreConfig

	// abandonCh is used to signal watchers that this state store has been
	// abandoned (usually during a restore). Snapshots share the channel
	// with the store they were taken from.
	abandonCh   chan struct{}
	abandonOnce *sync.Once
}

// StateSnapshot is used to provide a point-in-time snapshot. It works by
// starting a read transaction against the whole state store.
type StateSnapshot struct {
	StateStore
}

// NewStateStore is used to create a new state store
func NewStateStore(config *StateStoreConfig) (*StateStore, error) {
	// Create the MemDB
	db, err := memdb.NewMemDB(stateStoreSchema())
	if err != nil {
		return nil, fmt.Errorf("state store setup failed: %v", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	// Create the state store
	s := &StateStore{
		logger:      logger.Named("state_store"),
		config:      config,
		abandonCh:   make(chan struct{}),
		abandonOnce: new(sync.Once),
	}
	s.db = newChangeTrackerDB(db, s.traceChanges)

	return s, nil
}

// Config returns the state store configuration.
func (s *StateStore) Config() *StateStoreConfig {
	return s.config
}

// Snapshot is used to create a point in time snapshot. Because
// we use MemDB, we just need to snapshot the state of the underlying
// database.
func (s *StateStore) Snapshot() (*StateSnapshot, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	snap := &StateSnapshot{
		StateStore: StateStore{
			logger:      s.logger,
			config:      s.config,
			db:          s.db.Snapshot(),
			abandonCh:   s.abandonCh,
			abandonOnce: s.abandonOnce,
		},
	}
	return snap, nil
}

// AbandonCh returns a channel you can wait on to know if the state store was
// abandoned.
func (s *StateStore) AbandonCh() <-chan struct{} {
	return s.abandonCh
}

// Abandon is used to signal that the given state store has been abandoned.
// Calling this more than one time is safe. Every read started afterwards,
// including the next pull of an open candidate iterator, fails with
// structs.ErrStorageUnavailable.
func (s *StateStore) Abandon() {
	s.abandonOnce.Do(func() {
		close(s.abandonCh)
	})
}

// available returns an error wrapping structs.ErrStorageUnavailable once the
// store has been abandoned.
func (s *StateStore) available() error {
	select {
	case <-s.abandonCh:
		return fmt.Errorf("%w: state store abandoned", structs.ErrStorageUnavailable)
	default:
		return nil
	}
}

func (s *StateStore) traceChanges(changes Changes) {
	if !s.logger.IsTrace() {
		return
	}
	for _, change := range changes.Changes {
		op := "update"
		switch {
		case change.Created():
			op = "create"
		case change.Deleted():
			op = "delete"
		}
		s.logger.Trace("state changed", "table", change.Table, "op", op, "index", changes.Index)
	}
}

// IndexEntry is used with the "index" table
// for managing the latest Raft index affecting a table.
type IndexEntry struct {
	Key   string
	Value uint64
}

// Index finds the matching index value
func (s *StateStore) Index(name string) (uint64, error) {
	txn := s.db.ReadTxn()
	defer txn.Abort()

	// Lookup the first matching index
	out, err := txn.First(tableIndex, indexID, name)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	return out.(*IndexEntry).Value, nil
}

// LatestIndex returns the greatest index value for all indexes.
func (s *StateStore) LatestIndex() (uint64, error) {
	indexes, err := s.Indexes()
	if err != nil {
		return 0, err
	}

	var max uint64 = 0
	for {
		raw := indexes.Next()
		if raw == nil {
			break
		}

		// Prepare the request struct
		idx := raw.(*IndexEntry)

		// Determine the max
		if idx.Value > max {
			max = idx.Value
		}
	}

	return max, nil
}

// Indexes returns an iterator over all the indexes
func (s *StateStore) Indexes() (memdb.ResultIterator, error) {
	txn := s.db.ReadTxn()

	// Walk the entire nodes table
	iter, err := txn.Get(tableIndex, indexID)
	if err != nil {
		return nil, err
	}
	return iter, nil
}

// SchedulerConfig is used to get the current allocator configuration. A
// missing configuration is returned as nil without an error.
func (s *StateStore) SchedulerConfig() (uint64, *structs.SchedulerConfiguration, error) {
	if err := s.available(); err != nil {
		return 0, nil, err
	}

	tx := s.db.ReadTxn()
	defer tx.Abort()
	return s.schedulerConfigTxn(tx)
}

func (s *StateStore) schedulerConfigTxn(txn ReadTxn) (uint64, *structs.SchedulerConfiguration, error) {
	// Get the scheduler config
	config, err := First[*structs.SchedulerConfiguration](txn, TableSchedulerConfig, indexID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed scheduler config lookup: %w", err)
	}
	if config == nil {
		return 0, nil, nil
	}
	return config.ModifyIndex, config, nil
}

// SchedulerSetConfig is used to set the current allocator configuration.
func (s *StateStore) SchedulerSetConfig(index uint64, config *structs.SchedulerConfiguration) error {
	if err := s.available(); err != nil {
		return err
	}

	tx := s.db.WriteTxn(index)
	defer tx.Abort()

	if err := s.schedulerSetConfigTxn(index, tx, config); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *StateStore) schedulerSetConfigTxn(idx uint64, tx *txn, config *structs.SchedulerConfiguration) error {
	// Check for an existing config
	existing, err := First[*structs.SchedulerConfiguration](tx, TableSchedulerConfig, indexID)
	if err != nil {
		return fmt.Errorf("failed scheduler config lookup: %w", err)
	}

	// Set the indexes.
	if existing != nil {
		config.CreateIndex = existing.CreateIndex
	} else {
		config.CreateIndex = idx
	}
	config.ModifyIndex = idx

	if err := tx.Insert(TableSchedulerConfig, config); err != nil {
		return fmt.Errorf("failed updating scheduler config: %w", err)
	}
	if err := tx.Insert(tableIndex, &IndexEntry{TableSchedulerConfig, idx}); err != nil {
		return fmt.Errorf("index update failed: %w", err)
	}
	return nil
}
