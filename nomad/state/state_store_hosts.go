// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// UpsertHosts is used to register or update a set of hosts. It uses a
// single write transaction, so any error means no host is committed.
func (s *StateStore) UpsertHosts(index uint64, hosts []*structs.Host) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, host := range hosts {
		if err := s.upsertHostTxn(index, txn, host); err != nil {
			return err
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableHosts, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

func (s *StateStore) upsertHostTxn(index uint64, txn *txn, host *structs.Host) error {
	if err := host.Validate(); err != nil {
		return err
	}

	existing, err := First[*structs.Host](txn, TableHosts, indexID, host.ID)
	if err != nil {
		return fmt.Errorf("host lookup failed: %v", err)
	}

	if existing != nil {
		host.CreateIndex = existing.CreateIndex
	} else {
		host.CreateIndex = index
	}
	host.ModifyIndex = index

	if err := txn.Insert(TableHosts, host); err != nil {
		return fmt.Errorf("host insert failed: %v", err)
	}
	return nil
}

// UpdateHostComputeFree records the free compute left on a host after
// capacity accounting ran elsewhere.
func (s *StateStore) UpdateHostComputeFree(index uint64, hostID string, computeFree int64) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	existing, err := First[*structs.Host](txn, TableHosts, indexID, hostID)
	if err != nil {
		return fmt.Errorf("host lookup failed: %v", err)
	}
	if existing == nil {
		return fmt.Errorf("host %q not found", hostID)
	}

	// Copy the existing host since objects in the store are shared with
	// readers of older snapshots.
	host := existing.Copy()
	host.ComputeFree = computeFree
	host.ModifyIndex = index

	if err := txn.Insert(TableHosts, host); err != nil {
		return fmt.Errorf("host insert failed: %v", err)
	}
	if err := txn.Insert(tableIndex, &IndexEntry{TableHosts, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// DeleteHosts removes hosts by ID. Associations referencing the hosts are
// left alone; they are excluded from queries by the inner join.
func (s *StateStore) DeleteHosts(index uint64, hostIDs []string) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, id := range hostIDs {
		existing, err := txn.First(TableHosts, indexID, id)
		if err != nil {
			return fmt.Errorf("host lookup failed: %v", err)
		}
		if existing == nil {
			return fmt.Errorf("host %q not found", id)
		}
		if err := txn.Delete(TableHosts, existing); err != nil {
			return fmt.Errorf("host delete failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableHosts, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// HostByID is used to lookup a host by ID
func (s *StateStore) HostByID(ws memdb.WatchSet, id string) (*structs.Host, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()
	defer txn.Abort()

	watchCh, host, err := FirstWatch[*structs.Host](txn, TableHosts, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("host lookup failed: %v", err)
	}
	ws.Add(watchCh)
	return host, nil
}

// Hosts returns an iterator over all the hosts in ID order.
func (s *StateStore) Hosts(ws memdb.WatchSet, sort SortOption) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := getSorted(txn, sort, TableHosts, indexID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// HostsByComputeFree returns an iterator over all hosts ordered by free
// compute, smallest first. Hosts with equal free compute are ordered by ID.
func (s *StateStore) HostsByComputeFree(ws memdb.WatchSet, sort SortOption) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := getSorted(txn, sort, TableHosts, indexComputeFreeAsc)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// HostsByAgent returns the hosts fronted by the given agent.
func (s *StateStore) HostsByAgent(ws memdb.WatchSet, agentID string) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableHosts, indexAgentID, agentID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}

// UpsertAgents is used to register or update a set of agents.
func (s *StateStore) UpsertAgents(index uint64, agents []*structs.Agent) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	for _, agent := range agents {
		if err := agent.Validate(); err != nil {
			return err
		}

		existing, err := First[*structs.Agent](txn, TableAgents, indexID, agent.ID)
		if err != nil {
			return fmt.Errorf("agent lookup failed: %v", err)
		}
		if existing != nil {
			agent.CreateIndex = existing.CreateIndex
		} else {
			agent.CreateIndex = index
		}
		agent.ModifyIndex = index

		if err := txn.Insert(TableAgents, agent); err != nil {
			return fmt.Errorf("agent insert failed: %v", err)
		}
	}

	if err := txn.Insert(tableIndex, &IndexEntry{TableAgents, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// UpdateAgentState transitions an agent to a new state.
func (s *StateStore) UpdateAgentState(index uint64, agentID, state string) error {
	if err := s.available(); err != nil {
		return err
	}

	txn := s.db.WriteTxn(index)
	defer txn.Abort()

	existing, err := First[*structs.Agent](txn, TableAgents, indexID, agentID)
	if err != nil {
		return fmt.Errorf("agent lookup failed: %v", err)
	}
	if existing == nil {
		return fmt.Errorf("agent %q not found", agentID)
	}

	agent := existing.Copy()
	agent.State = state
	agent.ModifyIndex = index

	if err := txn.Insert(TableAgents, agent); err != nil {
		return fmt.Errorf("agent insert failed: %v", err)
	}
	if err := txn.Insert(tableIndex, &IndexEntry{TableAgents, index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return txn.Commit()
}

// AgentByID is used to lookup an agent by ID
func (s *StateStore) AgentByID(ws memdb.WatchSet, id string) (*structs.Agent, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()
	defer txn.Abort()

	watchCh, agent, err := FirstWatch[*structs.Agent](txn, TableAgents, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("agent lookup failed: %v", err)
	}
	ws.Add(watchCh)
	return agent, nil
}

// Agents returns an iterator over all the agents.
func (s *StateStore) Agents(ws memdb.WatchSet) (memdb.ResultIterator, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	txn := s.db.ReadTxn()

	iter, err := txn.Get(TableAgents, indexID)
	if err != nil {
		return nil, err
	}
	ws.Add(iter.WatchCh())
	return iter, nil
}
