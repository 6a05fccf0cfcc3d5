// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/hostpool/ci"
	"github.com/hashicorp/hostpool/helper/pointer"
	"github.com/hashicorp/hostpool/helper/testlog"
	"github.com/hashicorp/hostpool/nomad/mock"
	"github.com/hashicorp/hostpool/nomad/state"
	"github.com/hashicorp/hostpool/nomad/structs"
	"github.com/shoenig/test/must"
)

func row(host, pool string) structs.CandidateRow {
	return structs.CandidateRow{HostID: host, StoragePoolID: pool}
}

// twoHostInventory returns H1 and H2, both active, agentless and of kind
// "x", with free compute 10 and 5, sharing the active pool P1.
func twoHostInventory() *state.TestInventory {
	h1 := &structs.Host{ID: "H1", State: structs.StateActive, ComputeFree: 10, Kind: "x"}
	h2 := &structs.Host{ID: "H2", State: structs.StateActive, ComputeFree: 5, Kind: "x"}
	p1 := &structs.StoragePool{ID: "P1", State: structs.StateActive, Kind: "x"}
	return &state.TestInventory{
		Hosts:        []*structs.Host{h1, h2},
		StoragePools: []*structs.StoragePool{p1},
		StoragePoolMaps: []*structs.StoragePoolHostMap{
			mock.StoragePoolHostMap(h1, p1),
			mock.StoragePoolHostMap(h2, p1),
		},
	}
}

func TestAllocator_PoolMode_Spread(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	h.SetSpread(true)

	rows := h.Select(&structs.QueryOptions{}, structs.CandidateModePool)
	must.Eq(t, []structs.CandidateRow{row("H1", "P1"), row("H2", "P1")}, rows)
}

func TestAllocator_PoolMode_Pack(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	h.SetSpread(false)

	rows := h.Select(&structs.QueryOptions{}, structs.CandidateModePool)
	must.Eq(t, []structs.CandidateRow{row("H2", "P1"), row("H1", "P1")}, rows)
}

func TestAllocator_PoolMode_NoConfigPacks(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())

	rows := h.Select(nil, structs.CandidateModePool)
	must.Eq(t, []structs.CandidateRow{row("H2", "P1"), row("H1", "P1")}, rows)
}

func TestAllocator_KindWithoutHosts(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	h.SetSpread(true)

	for _, mode := range []structs.CandidateMode{structs.CandidateModePlacement, structs.CandidateModePool} {
		t.Run(mode.String(), func(t *testing.T) {
			rows := h.Select(&structs.QueryOptions{Kind: "y"}, mode)
			must.SliceEmpty(t, rows)
		})
	}
}

func TestAllocator_Placement_LeastLoadedFirst(t *testing.T) {
	ci.Parallel(t)

	inventory := func() *state.TestInventory {
		h3 := &structs.Host{ID: "H3", State: structs.StateActive, ComputeFree: 100}
		h4 := &structs.Host{ID: "H4", State: structs.StateActive, ComputeFree: 1}
		pool := &structs.StoragePool{ID: "P1", State: structs.StateActive}
		i1, i2 := mock.Instance(), mock.Instance()

		return &state.TestInventory{
			Hosts:        []*structs.Host{h3, h4},
			StoragePools: []*structs.StoragePool{pool},
			StoragePoolMaps: []*structs.StoragePoolHostMap{
				mock.StoragePoolHostMap(h3, pool),
				mock.StoragePoolHostMap(h4, pool),
			},
			Instances: []*structs.Instance{i1, i2},
			InstanceHostMaps: []*structs.InstanceHostMap{
				mock.InstanceHostMap(i1, h3),
				mock.InstanceHostMap(i2, h3),
			},
		}
	}

	// The spread policy has no effect on placement ordering.
	for _, spread := range []bool{true, false} {
		h := NewHarness(t)
		h.Upsert(inventory())
		h.SetSpread(spread)

		rows := h.Select(&structs.QueryOptions{}, structs.CandidateModePlacement)
		must.Eq(t, []structs.CandidateRow{row("H4", "P1"), row("H3", "P1")}, rows,
			must.Sprintf("spread=%v", spread))
	}
}

func TestAllocator_Placement_StartingInstancesCount(t *testing.T) {
	ci.Parallel(t)

	a := &structs.Host{ID: "A", State: structs.StateActive}
	b := &structs.Host{ID: "B", State: structs.StateActive}
	pool := &structs.StoragePool{ID: "P1", State: structs.StateActive}

	starting := mock.Instance()
	starting.State = structs.InstanceStateStarting
	stopped := mock.Instance()
	stopped.State = structs.InstanceStateStopped

	onA := mock.InstanceHostMap(starting, a)
	onA.State = structs.StateInactive
	onB1 := mock.InstanceHostMap(stopped, b)
	onB1.State = structs.StateInactive
	onB2 := mock.InstanceHostMap(stopped, b)
	onB2.State = structs.StateInactive

	h := NewHarness(t)
	h.Upsert(&state.TestInventory{
		Hosts:        []*structs.Host{a, b},
		StoragePools: []*structs.StoragePool{pool},
		StoragePoolMaps: []*structs.StoragePoolHostMap{
			mock.StoragePoolHostMap(a, pool),
			mock.StoragePoolHostMap(b, pool),
		},
		Instances:        []*structs.Instance{starting, stopped},
		InstanceHostMaps: []*structs.InstanceHostMap{onA, onB1, onB2},
	})

	// A carries one in-flight placement, B's inactive assignments are done.
	rows := h.Select(nil, structs.CandidateModePlacement)
	must.Eq(t, []structs.CandidateRow{row("B", "P1"), row("A", "P1")}, rows)
}

func TestAllocator_InactiveAgentExcluded(t *testing.T) {
	ci.Parallel(t)

	inv := twoHostInventory()
	agent := &structs.Agent{ID: "agent-5", State: structs.StateInactive}
	h5 := &structs.Host{ID: "H5", State: structs.StateActive, ComputeFree: 1000, Kind: "x", AgentID: agent.ID}
	inv.Agents = []*structs.Agent{agent}
	inv.Hosts = append(inv.Hosts, h5)
	inv.StoragePoolMaps = append(inv.StoragePoolMaps, mock.StoragePoolHostMap(h5, inv.StoragePools[0]))

	h := NewHarness(t)
	h.Upsert(inv)
	h.SetSpread(true)

	for _, mode := range []structs.CandidateMode{structs.CandidateModePlacement, structs.CandidateModePool} {
		for _, opts := range []*structs.QueryOptions{nil, structs.NewQueryOptions("H5")} {
			for _, r := range h.Select(opts, mode) {
				must.NotEq(t, "H5", r.HostID, must.Sprintf("mode=%s opts=%s", mode, opts))
			}
		}
	}

	// Once the agent is active the host is offered again.
	must.NoError(t, h.State.UpdateAgentState(h.NextIndex(), agent.ID, structs.StateActive))
	rows := h.Select(structs.NewQueryOptions("H5"), structs.CandidateModePool)
	must.Eq(t, []structs.CandidateRow{row("H5", "P1")}, rows)
}

func TestAllocator_ExplicitHosts(t *testing.T) {
	ci.Parallel(t)

	inv := twoHostInventory()
	inactive := &structs.Host{ID: "H9", State: structs.StateInactive, ComputeFree: 50, Kind: "x"}
	inv.Hosts = append(inv.Hosts, inactive)
	inv.StoragePoolMaps = append(inv.StoragePoolMaps, mock.StoragePoolHostMap(inactive, inv.StoragePools[0]))

	h := NewHarness(t)
	h.Upsert(inv)

	for _, mode := range []structs.CandidateMode{structs.CandidateModePlacement, structs.CandidateModePool} {
		t.Run(mode.String(), func(t *testing.T) {
			must.Eq(t, []structs.CandidateRow{row("H2", "P1")},
				h.Select(structs.NewQueryOptions("H2"), mode))

			// An ineligible host yields an empty stream, not an error.
			must.SliceEmpty(t, h.Select(structs.NewQueryOptions("H9"), mode))

			// Blank host IDs match nothing instead of everything.
			must.SliceEmpty(t, h.Select(structs.NewQueryOptions("", "  "), mode))
		})
	}
}

func TestAllocator_ComputeAndAccount(t *testing.T) {
	ci.Parallel(t)

	inv := twoHostInventory()
	inv.Hosts[0].AccountID = "acct-1"
	inv.Hosts[1].AccountID = "acct-2"

	h := NewHarness(t)
	h.Upsert(inv)
	h.SetSpread(true)

	for _, mode := range []structs.CandidateMode{structs.CandidateModePlacement, structs.CandidateModePool} {
		t.Run(mode.String(), func(t *testing.T) {
			rows := h.Select(&structs.QueryOptions{Compute: pointer.Of(int64(6))}, mode)
			must.Eq(t, []structs.CandidateRow{row("H1", "P1")}, rows)

			rows = h.Select(&structs.QueryOptions{Compute: pointer.Of(int64(5))}, mode)
			must.Len(t, 2, rows)

			rows = h.Select(&structs.QueryOptions{AccountID: "acct-2"}, mode)
			must.Eq(t, []structs.CandidateRow{row("H2", "P1")}, rows)
		})
	}
}

func TestAllocator_KindPlacementVsPool(t *testing.T) {
	ci.Parallel(t)

	host := &structs.Host{ID: "H1", State: structs.StateActive, Kind: "x"}
	px := &structs.StoragePool{ID: "PX", State: structs.StateActive, Kind: "x"}
	py := &structs.StoragePool{ID: "PY", State: structs.StateActive, Kind: "y"}

	h := NewHarness(t)
	h.Upsert(&state.TestInventory{
		Hosts:        []*structs.Host{host},
		StoragePools: []*structs.StoragePool{px, py},
		StoragePoolMaps: []*structs.StoragePoolHostMap{
			mock.StoragePoolHostMap(host, px),
			mock.StoragePoolHostMap(host, py),
		},
	})

	opts := &structs.QueryOptions{Kind: "x"}
	must.Eq(t, []structs.CandidateRow{row("H1", "PX")}, h.Select(opts, structs.CandidateModePlacement))
	must.Eq(t, []structs.CandidateRow{row("H1", "PX")}, h.Select(opts, structs.CandidateModePool))

	// Without a kind every active pool of the host is offered, in pool ID
	// order.
	must.Eq(t, []structs.CandidateRow{row("H1", "PX"), row("H1", "PY")},
		h.Select(nil, structs.CandidateModePlacement))
}

func TestAllocator_PoolEligibility(t *testing.T) {
	ci.Parallel(t)

	host := &structs.Host{ID: "H1", State: structs.StateUpdatingActive}
	live := &structs.StoragePool{ID: "P1", State: structs.StateActive}
	inactive := &structs.StoragePool{ID: "P2", State: structs.StateInactive}
	detached := &structs.StoragePool{ID: "P3", State: structs.StateActive}
	lonely := &structs.Host{ID: "H2", State: structs.StateActive}

	detachedMap := mock.StoragePoolHostMap(host, detached)

	h := NewHarness(t)
	h.Upsert(&state.TestInventory{
		Hosts:        []*structs.Host{host, lonely},
		StoragePools: []*structs.StoragePool{live, inactive, detached},
		StoragePoolMaps: []*structs.StoragePoolHostMap{
			mock.StoragePoolHostMap(host, live),
			mock.StoragePoolHostMap(host, inactive),
			detachedMap,
		},
	})
	must.NoError(t, h.State.RemoveStoragePoolHostMap(h.NextIndex(), detachedMap.ID, time.Now()))

	// H2 has no pool at all and never appears.
	for _, mode := range []structs.CandidateMode{structs.CandidateModePlacement, structs.CandidateModePool} {
		must.Eq(t, []structs.CandidateRow{row("H1", "P1")}, h.Select(nil, mode),
			must.Sprintf("mode=%s", mode))
	}
}

func TestAllocator_Idempotent(t *testing.T) {
	ci.Parallel(t)

	inv := twoHostInventory()
	h := NewHarness(t)
	h.Upsert(inv)
	h.SetSpread(true)

	alloc := h.Allocator()
	for _, mode := range []structs.CandidateMode{structs.CandidateModePlacement, structs.CandidateModePool} {
		first, err := alloc.SelectCandidates(context.Background(), nil, nil, mode)
		must.NoError(t, err)
		firstRows, err := first.Collect()
		must.NoError(t, err)

		second, err := alloc.SelectCandidates(context.Background(), nil, nil, mode)
		must.NoError(t, err)
		secondRows, err := second.Collect()
		must.NoError(t, err)

		must.Eq(t, firstRows, secondRows)
	}
}

func TestAllocator_SnapshotIsolation(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	h.SetSpread(true)

	alloc := h.Allocator()
	cursor, err := alloc.IteratorPools(context.Background(), nil, nil)
	must.NoError(t, err)

	// Writes after the snapshot, even before the first pull, are not seen.
	must.NoError(t, h.State.SchedulerSetConfig(h.NextIndex(), &structs.SchedulerConfiguration{SpreadEnabled: false}))
	must.NoError(t, h.State.DeleteHosts(h.NextIndex(), []string{"H1"}))

	rows, err := cursor.Collect()
	must.NoError(t, err)
	must.Len(t, 2, rows)
	must.Eq(t, "H1", rows[0].HostID)
}

func TestAllocator_EntryPoints(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	alloc := h.Allocator()

	volumes := []string{"vol-1", "vol-2"}
	hosts, err := alloc.IteratorHosts(context.Background(), volumes, nil)
	must.NoError(t, err)
	must.Eq(t, structs.CandidateModePlacement, hosts.Mode())
	must.Eq(t, volumes, hosts.Volumes())

	// The cursor keeps its own copy of the volume IDs.
	volumes[0] = "changed"
	must.Eq(t, "vol-1", hosts.Volumes()[0])
	hosts.Close()

	pools, err := alloc.IteratorPools(context.Background(), nil, nil)
	must.NoError(t, err)
	must.Eq(t, structs.CandidateModePool, pools.Mode())
	pools.Close()

	_, err = alloc.SelectCandidates(context.Background(), nil, nil, structs.CandidateMode(7))
	must.ErrorIs(t, err, structs.ErrUnknownCandidateMode)
}

func TestAllocator_StorageUnavailable(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	h.SetSpread(true)

	t.Run("on first pull", func(t *testing.T) {
		snap, err := h.State.Snapshot()
		must.NoError(t, err)
		alloc := NewAllocator(testlog.HCLogger(t), snap)

		cursor, err := alloc.IteratorPools(context.Background(), nil, nil)
		must.NoError(t, err)

		snap.Abandon()

		_, err = cursor.Next()
		must.True(t, errors.Is(err, structs.ErrStorageUnavailable))

		// The error is sticky.
		_, again := cursor.Next()
		must.Eq(t, err, again)
	})

	t.Run("on a later pull", func(t *testing.T) {
		store := state.TestStateStore(t)
		twoHostInventory().Upsert(t, store)
		alloc := NewAllocator(testlog.HCLogger(t), store)

		cursor, err := alloc.IteratorHosts(context.Background(), nil, nil)
		must.NoError(t, err)

		first, err := cursor.Next()
		must.NoError(t, err)
		must.NotNil(t, first)

		store.Abandon()

		_, err = cursor.Next()
		must.True(t, errors.Is(err, structs.ErrStorageUnavailable))
	})
}

// writingStore is a live store that writes a new host between the moment
// the allocator reads the configuration and the moment it runs the query.
type writingStore struct {
	*state.StateStore
	t         *testing.T
	snapshots int
}

func (w *writingStore) Snapshot() (*state.StateSnapshot, error) {
	w.snapshots++
	snap, err := w.StateStore.Snapshot()
	if err != nil {
		return nil, err
	}

	latest, err := w.LatestIndex()
	must.NoError(w.t, err)
	h3 := &structs.Host{ID: "H3", State: structs.StateActive, ComputeFree: 20, Kind: "x"}
	pool, err := w.StoragePoolByID(nil, "P1")
	must.NoError(w.t, err)
	must.NoError(w.t, w.UpsertHosts(latest+1, []*structs.Host{h3}))
	must.NoError(w.t, w.UpsertStoragePoolHostMaps(latest+2,
		[]*structs.StoragePoolHostMap{mock.StoragePoolHostMap(h3, pool)}))

	return snap, nil
}

func TestAllocator_PinsOneView(t *testing.T) {
	ci.Parallel(t)

	store := state.TestStateStore(t)
	twoHostInventory().Upsert(t, store)
	must.NoError(t, store.SchedulerSetConfig(100, &structs.SchedulerConfiguration{SpreadEnabled: true}))

	live := &writingStore{StateStore: store, t: t}
	alloc := NewAllocator(testlog.HCLogger(t), live)

	cursor, err := alloc.IteratorPools(context.Background(), nil, nil)
	must.NoError(t, err)
	rows, err := cursor.Collect()
	must.NoError(t, err)

	// H3 was written after the view was pinned.
	must.Eq(t, 1, live.snapshots)
	must.Eq(t, []*structs.CandidateRow{
		{HostID: "H1", StoragePoolID: "P1"},
		{HostID: "H2", StoragePoolID: "P1"},
	}, rows)

	// The next invocation pins a new view and sees H3.
	cursor, err = alloc.IteratorPools(context.Background(), nil, nil)
	must.NoError(t, err)
	rows, err = cursor.Collect()
	must.NoError(t, err)
	must.Eq(t, 2, live.snapshots)
	must.SliceLen(t, 3, rows)
	must.Eq(t, "H3", rows[0].HostID)
}

// rowsStore serves the configuration from a snapshot and fails queries with
// a fixed error.
type rowsStore struct {
	snap *state.StateSnapshot
	err  func(*structs.CandidateQuery) error
}

func (r *rowsStore) SchedulerConfig() (uint64, *structs.SchedulerConfiguration, error) {
	return r.snap.SchedulerConfig()
}

func (r *rowsStore) CandidateRows(query *structs.CandidateQuery) (structs.CandidateRowIterator, error) {
	return nil, r.err(query)
}

func TestAllocator_QueryErrors(t *testing.T) {
	ci.Parallel(t)

	h := NewHarness(t)
	h.Upsert(twoHostInventory())
	snap, err := h.State.Snapshot()
	must.NoError(t, err)

	t.Run("rejected query", func(t *testing.T) {
		store := &rowsStore{snap: snap, err: func(q *structs.CandidateQuery) error {
			bad := *q
			bad.Order = structs.CandidateOrder(9)
			return bad.Validate()
		}}
		cursor, err := NewAllocator(testlog.HCLogger(t), store).IteratorHosts(context.Background(), nil, nil)
		must.NoError(t, err)

		_, err = cursor.Next()
		must.ErrorIs(t, err, structs.ErrInvalidCandidateQuery)
		must.ErrorContains(t, err, "unknown candidate order 9")
		must.False(t, errors.Is(err, structs.ErrStorageUnavailable))
	})

	t.Run("storage failure", func(t *testing.T) {
		boom := errors.New("boom")
		store := &rowsStore{snap: snap, err: func(*structs.CandidateQuery) error { return boom }}
		cursor, err := NewAllocator(testlog.HCLogger(t), store).IteratorHosts(context.Background(), nil, nil)
		must.NoError(t, err)

		_, err = cursor.Next()
		must.ErrorIs(t, err, structs.ErrStorageUnavailable)
		must.ErrorIs(t, err, boom)
	})
}
