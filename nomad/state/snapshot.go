// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// SnapshotType is prefixed to a record in a persisted snapshot
// so that we can determine the type for restore
type SnapshotType byte

const (
	IndexSnapshot              SnapshotType = 0
	HostSnapshot               SnapshotType = 1
	AgentSnapshot              SnapshotType = 2
	StoragePoolSnapshot        SnapshotType = 3
	StoragePoolHostMapSnapshot SnapshotType = 4
	InstanceSnapshot           SnapshotType = 5
	InstanceHostMapSnapshot    SnapshotType = 6
	SchedulerConfigSnapshot    SnapshotType = 7
)

// snapshotHeader is the first entry in our snapshot
type snapshotHeader struct {
}

// StateRestore is used to optimize the performance when restoring state by
// only using a single large transaction instead of thousands of sub
// transactions.
type StateRestore struct {
	txn *txn
}

// Restore is used to optimize the efficiency of rebuilding state by
// minimizing the number of transactions and checking overhead.
func (s *StateStore) Restore() (*StateRestore, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	return &StateRestore{txn: s.db.WriteTxnRestore()}, nil
}

// Abort is used to abort the restore operation
func (r *StateRestore) Abort() {
	r.txn.Abort()
}

// Commit is used to commit the restore operation
func (r *StateRestore) Commit() error {
	return r.txn.Commit()
}

// IndexRestore is used to restore an index
func (r *StateRestore) IndexRestore(idx *IndexEntry) error {
	if err := r.txn.Insert(tableIndex, idx); err != nil {
		return fmt.Errorf("index insert failed: %v", err)
	}
	return nil
}

// HostRestore is used to restore a host
func (r *StateRestore) HostRestore(host *structs.Host) error {
	if err := r.txn.Insert(TableHosts, host); err != nil {
		return fmt.Errorf("host insert failed: %v", err)
	}
	return nil
}

// AgentRestore is used to restore an agent
func (r *StateRestore) AgentRestore(agent *structs.Agent) error {
	if err := r.txn.Insert(TableAgents, agent); err != nil {
		return fmt.Errorf("agent insert failed: %v", err)
	}
	return nil
}

// StoragePoolRestore is used to restore a storage pool
func (r *StateRestore) StoragePoolRestore(pool *structs.StoragePool) error {
	if err := r.txn.Insert(TableStoragePools, pool); err != nil {
		return fmt.Errorf("storage pool insert failed: %v", err)
	}
	return nil
}

// StoragePoolHostMapRestore is used to restore a storage pool association
func (r *StateRestore) StoragePoolHostMapRestore(m *structs.StoragePoolHostMap) error {
	if err := r.txn.Insert(TableStoragePoolHostMaps, m); err != nil {
		return fmt.Errorf("storage pool host map insert failed: %v", err)
	}
	return nil
}

// InstanceRestore is used to restore an instance
func (r *StateRestore) InstanceRestore(instance *structs.Instance) error {
	if err := r.txn.Insert(TableInstances, instance); err != nil {
		return fmt.Errorf("instance insert failed: %v", err)
	}
	return nil
}

// InstanceHostMapRestore is used to restore an instance assignment
func (r *StateRestore) InstanceHostMapRestore(m *structs.InstanceHostMap) error {
	if err := r.txn.Insert(TableInstanceHostMaps, m); err != nil {
		return fmt.Errorf("instance host map insert failed: %v", err)
	}
	return nil
}

// SchedulerConfigRestore is used to restore the allocator configuration
func (r *StateRestore) SchedulerConfigRestore(config *structs.SchedulerConfiguration) error {
	if err := r.txn.Insert(TableSchedulerConfig, config); err != nil {
		return fmt.Errorf("inserting scheduler config failed: %s", err)
	}
	return nil
}

// Persist writes the contents of the snapshot to sink. Every record is
// prefixed with its SnapshotType and encoded with msgpack.
func (s *StateSnapshot) Persist(sink io.Writer) error {
	defer metrics.MeasureSince([]string{"hostpool", "state", "persist"}, time.Now())

	encoder := codec.NewEncoder(sink, structs.MsgpackHandle)

	// Write the header
	header := snapshotHeader{}
	if err := encoder.Encode(&header); err != nil {
		return err
	}

	ws := memdb.NewWatchSet()
	indexes, err := s.Indexes()
	if err != nil {
		return err
	}
	if err := persistTable(sink, encoder, IndexSnapshot, indexes); err != nil {
		return err
	}

	tables := []struct {
		snapType SnapshotType
		fn       func(memdb.WatchSet) (memdb.ResultIterator, error)
	}{
		{HostSnapshot, func(ws memdb.WatchSet) (memdb.ResultIterator, error) { return s.Hosts(ws, SortDefault) }},
		{AgentSnapshot, s.Agents},
		{StoragePoolSnapshot, func(ws memdb.WatchSet) (memdb.ResultIterator, error) { return s.StoragePools(ws, SortDefault) }},
		{StoragePoolHostMapSnapshot, s.StoragePoolHostMaps},
		{InstanceSnapshot, s.Instances},
		{InstanceHostMapSnapshot, s.instanceHostMaps},
	}
	for _, table := range tables {
		iter, err := table.fn(ws)
		if err != nil {
			return err
		}
		if err := persistTable(sink, encoder, table.snapType, iter); err != nil {
			return err
		}
	}

	_, config, err := s.SchedulerConfig()
	if err != nil {
		return err
	}
	if config != nil {
		if _, err := sink.Write([]byte{byte(SchedulerConfigSnapshot)}); err != nil {
			return err
		}
		if err := encoder.Encode(config); err != nil {
			return err
		}
	}
	return nil
}

func persistTable(sink io.Writer, encoder *codec.Encoder, snapType SnapshotType, iter memdb.ResultIterator) error {
	for {
		// Get the next item
		raw := iter.Next()
		if raw == nil {
			break
		}

		if _, err := sink.Write([]byte{byte(snapType)}); err != nil {
			return err
		}
		if err := encoder.Encode(raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateStore) instanceHostMaps(ws memdb.WatchSet) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableInstanceHostMaps, indexID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// RestoreSnapshot reads a snapshot written by Persist into a new state
// store.
func RestoreSnapshot(old io.Reader, config *StateStoreConfig) (*StateStore, error) {
	defer metrics.MeasureSince([]string{"hostpool", "state", "restore"}, time.Now())

	// Create a new state store
	newState, err := NewStateStore(config)
	if err != nil {
		return nil, err
	}

	// Start the state restore
	restore, err := newState.Restore()
	if err != nil {
		return nil, err
	}
	defer restore.Abort()

	// Create a decoder
	dec := codec.NewDecoder(old, structs.MsgpackHandle)

	// Read in the header
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return nil, err
	}

	// Populate the new state
	msgType := make([]byte, 1)
	for {
		// Read the message type
		_, err := old.Read(msgType)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		// Decode
		snapType := SnapshotType(msgType[0])
		switch snapType {
		case IndexSnapshot:
			idx := new(IndexEntry)
			if err := dec.Decode(idx); err != nil {
				return nil, err
			}
			if err := restore.IndexRestore(idx); err != nil {
				return nil, err
			}

		case HostSnapshot:
			host := new(structs.Host)
			if err := dec.Decode(host); err != nil {
				return nil, err
			}
			if err := restore.HostRestore(host); err != nil {
				return nil, err
			}

		case AgentSnapshot:
			agent := new(structs.Agent)
			if err := dec.Decode(agent); err != nil {
				return nil, err
			}
			if err := restore.AgentRestore(agent); err != nil {
				return nil, err
			}

		case StoragePoolSnapshot:
			pool := new(structs.StoragePool)
			if err := dec.Decode(pool); err != nil {
				return nil, err
			}
			if err := restore.StoragePoolRestore(pool); err != nil {
				return nil, err
			}

		case StoragePoolHostMapSnapshot:
			m := new(structs.StoragePoolHostMap)
			if err := dec.Decode(m); err != nil {
				return nil, err
			}
			if err := restore.StoragePoolHostMapRestore(m); err != nil {
				return nil, err
			}

		case InstanceSnapshot:
			instance := new(structs.Instance)
			if err := dec.Decode(instance); err != nil {
				return nil, err
			}
			if err := restore.InstanceRestore(instance); err != nil {
				return nil, err
			}

		case InstanceHostMapSnapshot:
			m := new(structs.InstanceHostMap)
			if err := dec.Decode(m); err != nil {
				return nil, err
			}
			if err := restore.InstanceHostMapRestore(m); err != nil {
				return nil, err
			}

		case SchedulerConfigSnapshot:
			config := new(structs.SchedulerConfiguration)
			if err := dec.Decode(config); err != nil {
				return nil, err
			}
			if err := restore.SchedulerConfigRestore(config); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unrecognized snapshot type: %v", msgType)
		}
	}

	if err := restore.Commit(); err != nil {
		return nil, err
	}
	return newState, nil
}
