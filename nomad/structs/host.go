// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Host is a compute node that can run workloads and attach storage pools.
type Host struct {
	// ID is a unique identifier for the host.
	ID string

	// Name is a human readable label, it is never used for matching.
	Name string

	// State is the lifecycle state of the host. Only hosts in one of
	// HostSchedulableStates are offered as candidates.
	State string

	// ComputeFree is the free compute capacity left on the host, in
	// whatever unit the capacity accounting uses.
	ComputeFree int64

	// Kind tags the host with the class of workloads it serves.
	Kind string

	// AccountID is the tenant owning the host.
	AccountID string

	// AgentID references the agent fronting this host. Hosts without an
	// agent leave it empty.
	AgentID string

	// Raft Indexes
	CreateIndex uint64
	ModifyIndex uint64
}

// GetID implements the IDGetter interface.
func (h *Host) GetID() string {
	if h == nil {
		return ""
	}
	return h.ID
}

// Copy returns a copy of the host.
func (h *Host) Copy() *Host {
	if h == nil {
		return nil
	}
	nh := *h
	return &nh
}

// HasAgent returns whether the host references an agent.
func (h *Host) HasAgent() bool {
	return h.AgentID != ""
}

// Validate returns all problems with the host definition.
func (h *Host) Validate() error {
	var mErr *multierror.Error
	if h.ID == "" {
		mErr = multierror.Append(mErr, errors.New("missing host ID"))
	}
	if h.State == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("host %q: missing state", h.ID))
	}
	return mErr.ErrorOrNil()
}

// Agent is the per-host daemon whose liveness gates host eligibility.
type Agent struct {
	ID    string
	State string

	CreateIndex uint64
	ModifyIndex uint64
}

// GetID implements the IDGetter interface.
func (a *Agent) GetID() string {
	if a == nil {
		return ""
	}
	return a.ID
}

// Copy returns a copy of the agent.
func (a *Agent) Copy() *Agent {
	if a == nil {
		return nil
	}
	na := *a
	return &na
}

// Active returns true if the agent may front schedulable hosts.
func (a *Agent) Active() bool {
	return a.State == StateActive
}

// Validate returns all problems with the agent definition.
func (a *Agent) Validate() error {
	var mErr *multierror.Error
	if a.ID == "" {
		mErr = multierror.Append(mErr, errors.New("missing agent ID"))
	}
	if a.State == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("agent %q: missing state", a.ID))
	}
	return mErr.ErrorOrNil()
}
