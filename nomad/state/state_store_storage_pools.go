// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// UpsertStoragePools is used to register or update a set of storage pools.
func (s *StateStore) UpsertStoragePools(index uint64, pools []*structs.StoragePool) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, pool := range pools {
		if err := pool.Validate(); err != nil {
			return err
		}

		existing, err := First[*structs.StoragePool](txn, TableStoragePools, indexID, pool.ID)
		if err != nil {
			return fmt.Errorf("storage pool lookup failed: %v", err)
		}
		if existing != nil {
			pool.CreateIndex = existing.CreateIndex
		} else {
			pool.CreateIndex = index
		}
		pool.ModifyIndex = index

		if err := txn.Insert(TableStoragePools, pool); err != nil {
			return fmt.Errorf("storage pool insert failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableStoragePools, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// StoragePoolByID is used to lookup a storage pool by ID
func (s *StateStore) StoragePoolByID(ws memdb.WatchSet, id string) (*structs.StoragePool, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()
	defer txn.Abort()

	watchCh, pool, err := FirstWatch[*structs.StoragePool](txn, TableStoragePools, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("storage pool lookup failed: %v", err)
	}
	ws.Add(watchCh)
	return pool, nil
}

// StoragePools returns an iterator over all the storage pools.
func (s *StateStore) StoragePools(ws memdb.WatchSet, sort SortOption) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := getSorted(txn, sort, TableStoragePools, indexID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// UpsertStoragePoolHostMaps is used to attach storage pools to hosts. The
// referenced host and pool do not have to exist yet.
func (s *StateStore) UpsertStoragePoolHostMaps(index uint64, maps []*structs.StoragePoolHostMap) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, m := range maps {
		if err := m.Validate(); err != nil {
			return err
		}

		existing, err := First[*structs.StoragePoolHostMap](txn, TableStoragePoolHostMaps, indexID, m.ID)
		if err != nil {
			return fmt.Errorf("storage pool host map lookup failed: %v", err)
		}
		if existing != nil {
			m.CreateIndex = existing.CreateIndex
		} else {
			m.CreateIndex = index
		}
		m.ModifyIndex = index

		if err := txn.Insert(TableStoragePoolHostMaps, m); err != nil {
			return fmt.Errorf("storage pool host map insert failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableStoragePoolHostMaps, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// RemoveStoragePoolHostMap soft deletes an association by recording the
// time it was removed. Removed associations are never offered as
// candidates but stay in the store until they are purged. Removing an
// already removed association keeps the original removal time.
func (s *StateStore) RemoveStoragePoolHostMap(index uint64, id string, removed time.Time) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	existing, err := First[*structs.StoragePoolHostMap](txn, TableStoragePoolHostMaps, indexID, id)
	if err != nil {
		return fmt.Errorf("storage pool host map lookup failed: %v", err)
	}
	if existing == nil {
		return fmt.Errorf("storage pool host map %q not found", id)
	}
	if !existing.Live() {
		return nil
	}

	m := existing.Copy()
	m.Removed = &removed
	m.ModifyIndex = index

	if err := txn.Insert(TableStoragePoolHostMaps, m); err != nil {
		return fmt.Errorf("storage pool host map insert failed: %v", err)
	}
	if err := txn.Insert(tableIndex, &IndexEntry{TableStoragePoolHostMaps, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// PurgeStoragePoolHostMaps deletes associations removed before the given
// time and returns how many were deleted.
func (s *StateStore) PurgeStoragePoolHostMaps(index uint64, before time.Time) (int, error) {
	if err := s.available(); err != nil {
		return 0, err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	iter, err := Get[*structs.StoragePoolHostMap](txn, TableStoragePoolHostMaps, indexRemoved)
	if err != nil {
		return 0, fmt.Errorf("storage pool host map lookup failed: %v", err)
	}

	// The removed index is ordered by removal time, so the walk can stop at
	// the first association removed at or after the cutoff. Deletes happen
	// after the walk since the iterator must not observe its own writes.
	var purge []*structs.StoragePoolHostMap
	for m := iter.Next(); m != nil; m = iter.Next() {
		if !m.Removed.Before(before) {
			break
		}
		purge = append(purge, m)
	}
	if len(purge) == 0 {
		return 0, nil
	}

	for _, m := range purge {
		if err := txn.Delete(TableStoragePoolHostMaps, m); err != nil {
			return 0, fmt.Errorf("storage pool host map delete failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableStoragePoolHostMaps, index}); err != nil {
		return 0, fmt.Errorf("index update failed: %v", err)
	}
	return len(purge), txn.Commit()
}

// StoragePoolHostMapByID is used to lookup an association by ID
func (s *StateStore) StoragePoolHostMapByID(ws memdb.WatchSet, id string) (*structs.StoragePoolHostMap, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()
	defer txn.Abort()

	watchCh, m, err := FirstWatch[*structs.StoragePoolHostMap](txn, TableStoragePoolHostMaps, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("storage pool host map lookup failed: %v", err)
	}
	ws.Add(watchCh)
	return m, nil
}

// StoragePoolHostMaps returns an iterator over all associations, live and
// removed.
func (s *StateStore) StoragePoolHostMaps(ws memdb.WatchSet) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableStoragePoolHostMaps, indexID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// StoragePoolHostMapsByHost returns the associations of a host ordered by
// storage pool ID.
func (s *StateStore) StoragePoolHostMapsByHost(ws memdb.WatchSet, hostID string) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := storagePoolHostMapsByHostTxn(txn, hostID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// storagePoolHostMapsByHostTxn prefix scans the host_pool index. The empty
// pool ID argument terminates the host ID so that a host ID is never
// matched as the prefix of a longer one.
func storagePoolHostMapsByHostTxn(txn ReadTxn, hostID string) (memdb.ResultIterator, error) {
	return txn.Get(TableStoragePoolHostMaps, indexHostPool+indexPrefixSuffix, hostID, "")
}

// StoragePoolHostMapsByPool returns the associations of a storage pool.
func (s *StateStore) StoragePoolHostMapsByPool(ws memdb.WatchSet, poolID string) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableStoragePoolHostMaps, indexStoragePoolID, poolID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}
