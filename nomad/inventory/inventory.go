// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package inventory reads inventory files describing hosts, agents,
// storage pools and instances, and loads them into a state store.
package inventory

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Inventory is the set of objects described by one inventory file.
type Inventory struct {
	Agents              []*structs.Agent
	Hosts               []*structs.Host
	StoragePools        []*structs.StoragePool
	StoragePoolHostMaps []*structs.StoragePoolHostMap
	Instances           []*structs.Instance
	InstanceHostMaps    []*structs.InstanceHostMap

	// SchedulerConfig is nil when the file has no scheduler block.
	SchedulerConfig *structs.SchedulerConfiguration
}

// Validate returns every problem with the inventory at once. Host agent
// references may dangle, such hosts are treated as having no agent. Every
// other reference must resolve.
func (inv *Inventory) Validate() error {
	var mErr multierror.Error

	validateUnique(&mErr, "agent", inv.Agents)
	hosts := validateUnique(&mErr, "host", inv.Hosts)
	pools := validateUnique(&mErr, "storage pool", inv.StoragePools)
	validateUnique(&mErr, "storage pool host map", inv.StoragePoolHostMaps)
	instances := validateUnique(&mErr, "instance", inv.Instances)
	validateUnique(&mErr, "instance host map", inv.InstanceHostMaps)

	for _, a := range inv.Agents {
		appendValidate(&mErr, a.Validate())
	}
	for _, h := range inv.Hosts {
		appendValidate(&mErr, h.Validate())
	}
	for _, p := range inv.StoragePools {
		appendValidate(&mErr, p.Validate())
	}
	for _, m := range inv.StoragePoolHostMaps {
		appendValidate(&mErr, m.Validate())
		if m.HostID != "" && !hosts.Contains(m.HostID) {
			_ = multierror.Append(&mErr, fmt.Errorf("storage pool host map %q: unknown host %q", m.ID, m.HostID))
		}
		if m.StoragePoolID != "" && !pools.Contains(m.StoragePoolID) {
			_ = multierror.Append(&mErr, fmt.Errorf("storage pool host map %q: unknown storage pool %q", m.ID, m.StoragePoolID))
		}
	}
	for _, i := range inv.Instances {
		appendValidate(&mErr, i.Validate())
	}
	for _, m := range inv.InstanceHostMaps {
		appendValidate(&mErr, m.Validate())
		if m.HostID != "" && !hosts.Contains(m.HostID) {
			_ = multierror.Append(&mErr, fmt.Errorf("instance host map %q: unknown host %q", m.ID, m.HostID))
		}
		if m.InstanceID != "" && !instances.Contains(m.InstanceID) {
			_ = multierror.Append(&mErr, fmt.Errorf("instance host map %q: unknown instance %q", m.ID, m.InstanceID))
		}
	}

	return mErr.ErrorOrNil()
}

// appendValidate flattens the multierror returned by an object's Validate.
func appendValidate(mErr *multierror.Error, err error) {
	if err != nil {
		_ = multierror.Append(mErr, err)
	}
}

func validateUnique[T interface{ GetID() string }](mErr *multierror.Error, kind string, objs []T) *set.Set[string] {
	seen := set.New[string](len(objs))
	for _, obj := range objs {
		id := obj.GetID()
		if id == "" {
			continue
		}
		if !seen.Insert(id) {
			_ = multierror.Append(mErr, fmt.Errorf("duplicate %s %q", kind, id))
		}
	}
	return seen
}

// Stats summarizes an inventory.
type Stats struct {
	Agents              int
	Hosts               int
	StoragePools        int
	StoragePoolHostMaps int
	Instances           int
	InstanceHostMaps    int
}

// Stats counts the objects of each kind.
func (inv *Inventory) Stats() Stats {
	return Stats{
		Agents:              len(inv.Agents),
		Hosts:               len(inv.Hosts),
		StoragePools:        len(inv.StoragePools),
		StoragePoolHostMaps: len(inv.StoragePoolHostMaps),
		Instances:           len(inv.Instances),
		InstanceHostMaps:    len(inv.InstanceHostMaps),
	}
}

// Load validates the inventory and writes it into store. Each table is
// written in its own transaction, starting at index. Load returns the last
// index written.
func (inv *Inventory) Load(store *state.StateStore, index uint64) (uint64, error) {
	if err := inv.Validate(); err != nil {
		return 0, err
	}

	steps := []struct {
		name string
		fn   func(uint64) error
	}{
		{"agents", func(idx uint64) error { return store.UpsertAgents(idx, inv.Agents) }},
		{"hosts", func(idx uint64) error { return store.UpsertHosts(idx, inv.Hosts) }},
		{"storage pools", func(idx uint64) error { return store.UpsertStoragePools(idx, inv.StoragePools) }},
		{"storage pool host maps", func(idx uint64) error { return store.UpsertStoragePoolHostMaps(idx, inv.StoragePoolHostMaps) }},
		{"instances", func(idx uint64) error { return store.UpsertInstances(idx, inv.Instances) }},
		{"instance host maps", func(idx uint64) error { return store.UpsertInstanceHostMaps(idx, inv.InstanceHostMaps) }},
	}
	if inv.SchedulerConfig != nil {
		steps = append(steps, struct {
			name string
			fn   func(uint64) error
		}{"scheduler config", func(idx uint64) error { return store.SchedulerSetConfig(idx, inv.SchedulerConfig) }})
	}

	last := index
	for i, step := range steps {
		last = index + uint64(i)
		if err := step.fn(last); err != nil {
			return 0, fmt.Errorf("failed to load %s: %w", step.name, err)
		}
	}
	return last, nil
}

// NewStateStore returns a store holding the inventory, written from index 1.
func (inv *Inventory) NewStateStore(config *state.StateStoreConfig) (*state.StateStore, error) {
	store, err := state.NewStateStore(config)
	if err != nil {
		return nil, err
	}
	if _, err := inv.Load(store, 1); err != nil {
		return nil, err
	}
	return store, nil
}
