// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/hostpool/ci"
	"github.com/hashicorp/hostpool/helper/pointer"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
	"github.com/shoenig/test/must"
	"pgregory.net/rapid"
)

var (
	propHostStates = []string{
		structs.StateActive, structs.StateUpdatingActive, structs.StateInactive,
		structs.StateActivating, structs.StateRemoved,
	}
	propPoolStates     = []string{structs.StateActive, structs.StateInactive, structs.StateRemoved}
	propKinds          = []string{"", "x", "y"}
	propAccounts       = []string{"", "acct-1", "acct-2"}
	propInstanceStates = []string{
		structs.InstanceStateStarting, structs.InstanceStateRunning, structs.InstanceStateStopped,
	}
)

// propInventory generates a random inventory. Agent references may dangle
// and pool host maps may point at missing pools.
func propInventory(rt *rapid.T) *state.TestInventory {
	inv := &state.TestInventory{}

	numPools := rapid.IntRange(0, 4).Draw(rt, "pools")
	for i := 0; i < numPools; i++ {
		inv.StoragePools = append(inv.StoragePools, &structs.StoragePool{
			ID:    fmt.Sprintf("p%d", i),
			State: rapid.SampledFrom(propPoolStates).Draw(rt, "pool_state"),
			Kind:  rapid.SampledFrom(propKinds).Draw(rt, "pool_kind"),
		})
	}

	removed := time.Unix(1700000000, 0)
	numHosts := rapid.IntRange(0, 6).Draw(rt, "hosts")
	for i := 0; i < numHosts; i++ {
		host := &structs.Host{
			ID:          fmt.Sprintf("h%d", i),
			State:       rapid.SampledFrom(propHostStates).Draw(rt, "host_state"),
			ComputeFree: rapid.Int64Range(-2, 8).Draw(rt, "compute_free"),
			Kind:        rapid.SampledFrom(propKinds).Draw(rt, "host_kind"),
			AccountID:   rapid.SampledFrom(propAccounts).Draw(rt, "host_account"),
		}

		switch rapid.IntRange(0, 3).Draw(rt, "agent") {
		case 1:
			host.AgentID = "agent-" + host.ID
			inv.Agents = append(inv.Agents, &structs.Agent{ID: host.AgentID, State: structs.StateActive})
		case 2:
			host.AgentID = "agent-" + host.ID
			inv.Agents = append(inv.Agents, &structs.Agent{ID: host.AgentID, State: structs.StateInactive})
		case 3:
			host.AgentID = "missing-" + host.ID
		}
		inv.Hosts = append(inv.Hosts, host)

		// Pool indexes past numPools reference pools that do not exist.
		numMaps := rapid.IntRange(0, 3).Draw(rt, "maps")
		for j := 0; j < numMaps; j++ {
			m := &structs.StoragePoolHostMap{
				ID:            fmt.Sprintf("%s-m%d", host.ID, j),
				HostID:        host.ID,
				StoragePoolID: fmt.Sprintf("p%d", rapid.IntRange(0, numPools).Draw(rt, "map_pool")),
			}
			if rapid.IntRange(0, 4).Draw(rt, "map_removed") == 0 {
				m.Removed = pointer.Of(removed)
			}
			inv.StoragePoolMaps = append(inv.StoragePoolMaps, m)
		}

		numAssigned := rapid.IntRange(0, 3).Draw(rt, "instances")
		for j := 0; j < numAssigned; j++ {
			instance := &structs.Instance{
				ID:    fmt.Sprintf("%s-i%d", host.ID, j),
				State: rapid.SampledFrom(propInstanceStates).Draw(rt, "instance_state"),
			}
			mapState := structs.StateActive
			if rapid.Bool().Draw(rt, "map_inactive") {
				mapState = structs.StateInactive
			}
			inv.Instances = append(inv.Instances, instance)
			inv.InstanceHostMaps = append(inv.InstanceHostMaps, &structs.InstanceHostMap{
				ID:         fmt.Sprintf("%s-im%d", host.ID, j),
				InstanceID: instance.ID,
				HostID:     host.ID,
				State:      mapState,
			})
		}
	}
	return inv
}

func propOptions(rt *rapid.T, inv *state.TestInventory) *structs.QueryOptions {
	opts := &structs.QueryOptions{
		Kind:      rapid.SampledFrom(propKinds).Draw(rt, "opt_kind"),
		AccountID: rapid.SampledFrom(propAccounts).Draw(rt, "opt_account"),
	}
	if rapid.Bool().Draw(rt, "opt_compute") {
		opts.Compute = pointer.Of(rapid.Int64Range(-3, 9).Draw(rt, "compute"))
	}
	if len(inv.Hosts) > 0 && rapid.Bool().Draw(rt, "opt_hosts") {
		ids := rapid.SliceOfN(rapid.SampledFrom(inv.Hosts), 1, 3).Draw(rt, "opt_host_ids")
		opts.Hosts = set.New[string](len(ids))
		for _, h := range ids {
			opts.Hosts.Insert(h.ID)
		}
	}
	return opts
}

// propModel answers the questions the properties need about an inventory,
// computed without the store.
type propModel struct {
	hosts  map[string]*structs.Host
	agents map[string]*structs.Agent
	pools  map[string]*structs.StoragePool
	live   map[[2]string]bool
	load   map[string]int
}

func newPropModel(inv *state.TestInventory) *propModel {
	m := &propModel{
		hosts:  map[string]*structs.Host{},
		agents: map[string]*structs.Agent{},
		pools:  map[string]*structs.StoragePool{},
		live:   map[[2]string]bool{},
		load:   map[string]int{},
	}
	for _, h := range inv.Hosts {
		m.hosts[h.ID] = h
	}
	for _, a := range inv.Agents {
		m.agents[a.ID] = a
	}
	for _, p := range inv.StoragePools {
		m.pools[p.ID] = p
	}
	for _, sm := range inv.StoragePoolMaps {
		if sm.Removed == nil {
			m.live[[2]string{sm.HostID, sm.StoragePoolID}] = true
		}
	}
	instances := map[string]*structs.Instance{}
	for _, i := range inv.Instances {
		instances[i.ID] = i
	}
	for _, im := range inv.InstanceHostMaps {
		if im.State == structs.StateActive ||
			(im.State == structs.StateInactive && instances[im.InstanceID].State == structs.InstanceStateStarting) {
			m.load[im.HostID]++
		}
	}
	return m
}

func (m *propModel) eligible(hostID string) bool {
	host := m.hosts[hostID]
	if host == nil || !structs.HostStateSchedulable(host.State) {
		return false
	}
	agent := m.agents[host.AgentID]
	return agent == nil || agent.State == structs.StateActive
}

func (m *propModel) matches(opts *structs.QueryOptions, row *structs.CandidateRow) bool {
	host, pool := m.hosts[row.HostID], m.pools[row.StoragePoolID]
	if opts.Hosts != nil && !opts.Hosts.Contains(host.ID) {
		return false
	}
	if opts.Compute != nil && host.ComputeFree < *opts.Compute {
		return false
	}
	if opts.AccountID != "" && host.AccountID != opts.AccountID {
		return false
	}
	return opts.Kind == "" || (host.Kind == opts.Kind && pool.Kind == opts.Kind)
}

func TestAllocator_Properties(t *testing.T) {
	ci.Parallel(t)

	rapid.Check(t, func(rt *rapid.T) {
		inv := propInventory(rt)
		opts := propOptions(rt, inv)
		spread := rapid.Bool().Draw(rt, "spread")
		mode := rapid.SampledFrom([]structs.CandidateMode{
			structs.CandidateModePlacement, structs.CandidateModePool,
		}).Draw(rt, "mode")

		h := NewHarness(t)
		h.Upsert(inv)
		h.SetSpread(spread)
		model := newPropModel(inv)

		rows := h.Select(opts, mode)

		seen := set.New[[2]string](len(rows))
		for _, row := range rows {
			pair := [2]string{row.HostID, row.StoragePoolID}
			must.True(rt, seen.Insert(pair), must.Sprintf("duplicate pair %v", pair))
			must.True(rt, model.eligible(row.HostID), must.Sprintf("ineligible host %s", row.HostID))
			must.True(rt, model.live[pair], must.Sprintf("no live map for %v", pair))

			pool := model.pools[row.StoragePoolID]
			must.NotNil(rt, pool)
			must.Eq(rt, structs.StateActive, pool.State)

			// Placement filters kind per host and per pool, pool-only
			// filters the joined row. Both keep the same pairs.
			must.True(rt, model.matches(opts, &row), must.Sprintf("row %v does not match %s", pair, opts))
		}

		// Rows of one host are contiguous.
		done := set.New[string](len(rows))
		for i, row := range rows {
			if i > 0 && rows[i-1].HostID != row.HostID {
				must.True(rt, done.Insert(rows[i-1].HostID))
			}
			must.False(rt, done.Contains(row.HostID))
		}

		// Every matching live pair is yielded.
		var expected int
		for pair := range model.live {
			row := &structs.CandidateRow{HostID: pair[0], StoragePoolID: pair[1]}
			pool := model.pools[pair[1]]
			if pool == nil || pool.State != structs.StateActive || !model.eligible(pair[0]) {
				continue
			}
			if model.matches(opts, row) {
				expected++
			}
		}
		must.Eq(rt, expected, len(rows))

		for i := 1; i < len(rows); i++ {
			prev, cur := rows[i-1], rows[i]
			if prev.HostID == cur.HostID {
				must.Less(rt, cur.StoragePoolID, prev.StoragePoolID)
				continue
			}
			switch {
			case mode == structs.CandidateModePlacement:
				must.LessEq(rt, model.load[cur.HostID], model.load[prev.HostID])
				if model.load[prev.HostID] == model.load[cur.HostID] {
					must.Less(rt, cur.HostID, prev.HostID)
				}
			case spread:
				a, b := model.hosts[prev.HostID].ComputeFree, model.hosts[cur.HostID].ComputeFree
				must.GreaterEq(rt, b, a)
				if a == b {
					must.Less(rt, cur.HostID, prev.HostID)
				}
			default:
				a, b := model.hosts[prev.HostID].ComputeFree, model.hosts[cur.HostID].ComputeFree
				must.LessEq(rt, b, a)
				if a == b {
					must.Less(rt, cur.HostID, prev.HostID)
				}
			}
		}

		// A second invocation against the same data gives the same rows.
		must.True(rt, slices.Equal(rows, h.Select(opts, mode)))
	})
}
