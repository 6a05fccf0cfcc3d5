// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// UpsertInstances is used to register or update a set of instances.
func (s *StateStore) UpsertInstances(index uint64, instances []*structs.Instance) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, instance := range instances {
		if err := instance.Validate(); err != nil {
			return err
		}

		existing, err := First[*structs.Instance](txn, TableInstances, indexID, instance.ID)
		if err != nil {
			return fmt.Errorf("instance lookup failed: %v", err)
		}
		if existing != nil {
			instance.CreateIndex = existing.CreateIndex
		} else {
			instance.CreateIndex = index
		}
		instance.ModifyIndex = index

		if err := txn.Insert(TableInstances, instance); err != nil {
			return fmt.Errorf("instance insert failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableInstances, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// InstanceByID is used to lookup an instance by ID
func (s *StateStore) InstanceByID(ws memdb.WatchSet, id string) (*structs.Instance, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()
	defer txn.Abort()

	watchCh, instance, err := FirstWatch[*structs.Instance](txn, TableInstances, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("instance lookup failed: %v", err)
	}
	ws.Add(watchCh)
	return instance, nil
}

// Instances returns an iterator over all the instances.
func (s *StateStore) Instances(ws memdb.WatchSet) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableInstances, indexID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// UpsertInstanceHostMaps is used to assign instances to hosts.
func (s *StateStore) UpsertInstanceHostMaps(index uint64, maps []*structs.InstanceHostMap) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, m := range maps {
		if err := m.Validate(); err != nil {
			return err
		}

		existing, err := First[*structs.InstanceHostMap](txn, TableInstanceHostMaps, indexID, m.ID)
		if err != nil {
			return fmt.Errorf("instance host map lookup failed: %v", err)
		}
		if existing != nil {
			m.CreateIndex = existing.CreateIndex
		} else {
			m.CreateIndex = index
		}
		m.ModifyIndex = index

		if err := txn.Insert(TableInstanceHostMaps, m); err != nil {
			return fmt.Errorf("instance host map insert failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableInstanceHostMaps, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// InstanceHostMapsByHost returns the instance assignments of a host.
func (s *StateStore) InstanceHostMapsByHost(ws memdb.WatchSet, hostID string) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableInstanceHostMaps, indexHostID, hostID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// InstanceHostMapsByInstance returns the host assignments of an instance.
func (s *StateStore) InstanceHostMapsByInstance(ws memdb.WatchSet, instanceID string) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableInstanceHostMaps, indexInstanceID, instanceID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// HostLoad returns the number of instance assignments counted against a
// host.
func (s *StateStore) HostLoad(ws memdb.WatchSet, hostID string) (int, error) {
	if err := s.available(); err != nil {
		return 0, err
	}

	txn := s.db.ReadTxn()
	defer txn.Abort()

	return hostLoadTxn(txn, ws, hostID)
}

// hostLoadTxn counts the assignments of a host that are active, or inactive
// while their instance is still starting. A missing instance row never
// counts for an inactive assignment.
func hostLoadTxn(txn ReadTxn, ws memdb.WatchSet, hostID string) (int, error) {
	iter, err := Get[*structs.InstanceHostMap](txn, TableInstanceHostMaps, indexHostID, hostID)
	if err != nil {
		return 0, fmt.Errorf("instance host map lookup failed: %w", err)
	}
	ws.Add(iter.WatchCh())

	load := 0
	for m := iter.Next(); m != nil; m = iter.Next() {
		var instance *structs.Instance
		if m.State == structs.StateInactive {
			instance, err = First[*structs.Instance](txn, TableInstances, indexID, m.InstanceID)
			if err != nil {
				return 0, fmt.Errorf("instance lookup failed: %w", err)
			}
		}
		if m.CountsAsLoad(instance) {
			load++
		}
	}
	return load, nil
}
