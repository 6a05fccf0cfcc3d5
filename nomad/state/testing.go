// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"testing"

	"github.com/hashicorp/hostpool/helper/testlog"
	"github.com/hashicorp/hostpool/nomad/structs"
)

func TestStateStore(t testing.TB) *StateStore {
	config := &StateStoreConfig{
		Logger: testlog.HCLogger(t),
	}
	state, err := NewStateStore(config)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if state == nil {
		t.Fatalf("missing state")
	}
	return state
}

// TestInventory writes the given objects into the store at the next index.
// Nil slices are skipped.
type TestInventory struct {
	Hosts            []*structs.Host
	Agents           []*structs.Agent
	StoragePools     []*structs.StoragePool
	StoragePoolMaps  []*structs.StoragePoolHostMap
	Instances        []*structs.Instance
	InstanceHostMaps []*structs.InstanceHostMap
}

// Upsert writes the inventory to the store and fails the test on error.
func (i *TestInventory) Upsert(t testing.TB, s *StateStore) {
	t.Helper()

	index, err := s.LatestIndex()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	steps := []func(uint64) error{
		func(idx uint64) error { return s.UpsertAgents(idx, i.Agents) },
		func(idx uint64) error { return s.UpsertHosts(idx, i.Hosts) },
		func(idx uint64) error { return s.UpsertStoragePools(idx, i.StoragePools) },
		func(idx uint64) error { return s.UpsertStoragePoolHostMaps(idx, i.StoragePoolMaps) },
		func(idx uint64) error { return s.UpsertInstances(idx, i.Instances) },
		func(idx uint64) error { return s.UpsertInstanceHostMaps(idx, i.InstanceHostMaps) },
	}
	for _, step := range steps {
		index++
		if err := step(index); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}
