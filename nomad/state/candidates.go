// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// CandidateRows executes a planned candidate query. The returned iterator
// holds a read transaction open until it is exhausted or closed, so every
// row it yields comes from the same consistent view of the store.
//
// Hosts are joined to their agent with a left join: a host without an
// agent, or whose agent row does not exist, is matched with a nil agent.
// Hosts are joined to storage pools through live associations with an
// inner join, so a host without a live association to an existing pool
// yields no rows.
func (s *StateStore) CandidateRows(query *structs.CandidateQuery) (structs.CandidateRowIterator, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()
	iter := &CandidateIterator{
		store: s,
		txn:   txn,
		query: query,
	}

	var err error
	switch query.Order {
	case structs.CandidateOrderLoadAsc:
		err = iter.prescanByLoad()
	case structs.CandidateOrderComputeFreeDesc:
		iter.hostIter, err = txn.Get(TableHosts, indexComputeFreeDesc)
	case structs.CandidateOrderComputeFreeAsc:
		iter.hostIter, err = txn.Get(TableHosts, indexComputeFreeAsc)
	}
	if err != nil {
		iter.Close()
		return nil, structs.WrapStorageUnavailable(err)
	}
	return iter, nil
}

// candidateHost is an eligible host together with its joined agent and, for
// load ordered queries, its load.
type candidateHost struct {
	host  *structs.Host
	agent *structs.Agent
	load  int
}

// CandidateIterator streams the rows of a candidate query.
//
// Load ordered queries need every eligible host's load before the first row
// can be yielded, so they scan hosts up front and keep one candidateHost per
// eligible host. Compute ordered queries walk a host index lazily and never
// hold more than the current host. In both cases the storage pools of a host
// are read lazily from the host_pool index, in pool ID order.
type CandidateIterator struct {
	store *StateStore
	txn   *txn
	query *structs.CandidateQuery

	// hosts and hostIdx hold the prescanned hosts of a load ordered query.
	hosts   []*candidateHost
	hostIdx int

	// hostIter walks the hosts of a compute ordered query.
	hostIter memdb.ResultIterator

	current  *candidateHost
	poolIter memdb.ResultIterator
	lastPool string

	closed bool
}

// prescanByLoad collects the hosts matching the host condition in host ID
// order, then stable sorts them by load so that hosts with the same load
// keep ascending host ID order.
func (c *CandidateIterator) prescanByLoad() error {
	defer metrics.MeasureSince([]string{"hostpool", "state", "candidate_prescan"}, time.Now())

	iter, err := Get[*structs.Host](c.txn, TableHosts, indexID)
	if err != nil {
		return err
	}
	for host := iter.Next(); host != nil; host = iter.Next() {
		candidate, err := c.eligibleHost(host)
		if err != nil {
			return err
		}
		if candidate == nil {
			continue
		}

		candidate.load, err = hostLoadTxn(c.txn, nil, host.ID)
		if err != nil {
			return err
		}
		c.hosts = append(c.hosts, candidate)
	}

	sort.SliceStable(c.hosts, func(i, j int) bool {
		return c.hosts[i].load < c.hosts[j].load
	})
	return nil
}

// eligibleHost joins the host to its agent and evaluates the host
// condition. It returns nil when the host does not match.
func (c *CandidateIterator) eligibleHost(host *structs.Host) (*candidateHost, error) {
	var agent *structs.Agent
	if host.HasAgent() {
		var err error
		agent, err = First[*structs.Agent](c.txn, TableAgents, indexID, host.AgentID)
		if err != nil {
			return nil, err
		}
	}

	src := &structs.CandidateSource{Host: host, Agent: agent}
	if !c.query.HostCondition.Match(src) {
		return nil, nil
	}
	return &candidateHost{host: host, agent: agent}, nil
}

// nextHost advances to the next eligible host, returning false once the
// hosts are exhausted.
func (c *CandidateIterator) nextHost() (bool, error) {
	if c.hostIter == nil {
		if c.hostIdx >= len(c.hosts) {
			return false, nil
		}
		c.current = c.hosts[c.hostIdx]

		// Release the host so memory shrinks as the stream is consumed.
		c.hosts[c.hostIdx] = nil
		c.hostIdx++
		return true, nil
	}

	for {
		raw := c.hostIter.Next()
		if raw == nil {
			return false, nil
		}
		candidate, err := c.eligibleHost(raw.(*structs.Host))
		if err != nil {
			return false, err
		}
		if candidate != nil {
			c.current = candidate
			return true, nil
		}
	}
}

// Next returns the next candidate row, or nil once the query is exhausted.
// The transaction is released when Next returns nil or an error.
func (c *CandidateIterator) Next() (*structs.CandidateRow, error) {
	if c.closed {
		return nil, nil
	}

	row, err := c.next()
	if err != nil {
		c.Close()
		return nil, structs.WrapStorageUnavailable(err)
	}
	if row == nil {
		c.Close()
	}
	return row, nil
}

func (c *CandidateIterator) next() (*structs.CandidateRow, error) {
	for {
		if err := c.store.available(); err != nil {
			return nil, err
		}

		if c.poolIter == nil {
			ok, err := c.nextHost()
			if err != nil || !ok {
				return nil, err
			}
			c.poolIter, err = storagePoolHostMapsByHostTxn(c.txn, c.current.host.ID)
			if err != nil {
				return nil, err
			}
			c.lastPool = ""
		}

		raw := c.poolIter.Next()
		if raw == nil {
			c.poolIter = nil
			continue
		}

		m := raw.(*structs.StoragePoolHostMap)
		if !m.Live() {
			continue
		}

		// The host_pool index is sorted by pool ID, so associations naming
		// the same pair are adjacent.
		if m.StoragePoolID == c.lastPool {
			continue
		}

		pool, err := First[*structs.StoragePool](c.txn, TableStoragePools, indexID, m.StoragePoolID)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			continue
		}

		src := &structs.CandidateSource{
			Host:  c.current.host,
			Agent: c.current.agent,
			Pool:  pool,
		}
		if !c.query.PoolCondition.Match(src) {
			continue
		}

		c.lastPool = m.StoragePoolID
		return &structs.CandidateRow{
			HostID:        c.current.host.ID,
			StoragePoolID: pool.ID,
		}, nil
	}
}

// Close releases the read transaction. It is safe to call more than once.
func (c *CandidateIterator) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.txn.Abort()
	c.hosts = nil
	c.hostIter = nil
	c.poolIter = nil
	c.current = nil
}
