// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"github.com/hashicorp/go-memdb"
)

// ReadTxn is implemented by memdb.Txn to perform read operations.
type ReadTxn interface {
	Get(table, index string, args ...interface{}) (memdb.ResultIterator, error)
	GetReverse(table, index string, args ...interface{}) (memdb.ResultIterator, error)
	First(table, index string, args ...interface{}) (interface{}, error)
	FirstWatch(table, index string, args ...interface{}) (<-chan struct{}, interface{}, error)
	Abort()
}

// Changes wraps a memdb.Changes to include the index at which these changes
// were made.
type Changes struct {
	// Index is the latest index at the time these changes were committed.
	Index   uint64
	Changes memdb.Changes
}

// changeTrackerDB is a thin wrapper around memdb.DB which enables
// TrackChanges on all write transactions. When a transaction is committed
// the changes are handed to processChanges.
type changeTrackerDB struct {
	memdb          *memdb.MemDB
	processChanges changeProcessor
}

type changeProcessor func(Changes)

func noOpProcessChanges(Changes) {}

func newChangeTrackerDB(db *memdb.MemDB, changesFn changeProcessor) *changeTrackerDB {
	if changesFn == nil {
		changesFn = noOpProcessChanges
	}
	return &changeTrackerDB{
		memdb:          db,
		processChanges: changesFn,
	}
}

// ReadTxn returns a read-only transaction which behaves exactly the same as
// memdb.Txn
func (c *changeTrackerDB) ReadTxn() *txn {
	return &txn{Txn: c.memdb.Txn(false)}
}

// WriteTxn returns a wrapped memdb.Txn suitable for writes to the state
// store. Changes are tracked and handed to the change processor when Commit
// is called.
//
// The idx argument is the modify index written to every object touched by
// the transaction.
func (c *changeTrackerDB) WriteTxn(idx uint64) *txn {
	t := &txn{
		Txn:     c.memdb.Txn(true),
		Index:   idx,
		process: c.processChanges,
	}
	t.Txn.TrackChanges()
	return t
}

// WriteTxnRestore returns a wrapped RW transaction that does NOT have change
// tracking enabled. This should only be used in Restore where we need to
// replace the entire contents of the Store without a need to track the
// changes.
func (c *changeTrackerDB) WriteTxnRestore() *txn {
	return &txn{
		Txn:   c.memdb.Txn(true),
		Index: 0,
	}
}

// Snapshot returns a point-in-time copy of the database.
func (c *changeTrackerDB) Snapshot() *changeTrackerDB {
	return &changeTrackerDB{
		memdb:          c.memdb.Snapshot(),
		processChanges: noOpProcessChanges,
	}
}

// txn wraps a memdb.Txn to capture the changes of a write.
type txn struct {
	*memdb.Txn

	// Index where the write is occurring. The value is zero for a
	// read-only, or WriteTxnRestore transaction.
	Index   uint64
	process changeProcessor
}

// Commit hands the tracked changes to the change processor, then calls
// Commit on the underlying transaction.
//
// Note that this function, unlike memdb.Txn, returns an error which must be
// checked by the caller.
func (tx *txn) Commit() error {
	// process may be nil if this is a read-only or WriteTxnRestore
	// transaction. In those cases changes should also be empty.
	if tx.process != nil {
		tx.process(Changes{
			Index:   tx.Index,
			Changes: tx.Txn.Changes(),
		})
	}

	tx.Txn.Commit()
	return nil
}
