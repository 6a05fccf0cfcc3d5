// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"github.com/hashicorp/hostpool/nomad/structs"
)

// hostQueryCondition returns the host level filter of a placement query:
// explicit hosts, minimum free compute, host kind and account.
func hostQueryCondition(opts *structs.QueryOptions) *structs.Condition {
	conds := sharedHostConditions(opts)
	if opts.Kind != "" {
		conds = append(conds, structs.HostKindIs(opts.Kind))
	}
	if opts.AccountID != "" {
		conds = append(conds, structs.HostAccountIs(opts.AccountID))
	}
	return structs.And(conds...)
}

// poolQueryCondition returns the filter of a pool-only query. It is
// evaluated on the joined host and pool, and the kind clause requires both
// to be of the requested kind.
func poolQueryCondition(opts *structs.QueryOptions) *structs.Condition {
	conds := sharedHostConditions(opts)
	if opts.Kind != "" {
		conds = append(conds, structs.HostKindIs(opts.Kind).And(structs.PoolKindIs(opts.Kind)))
	}
	if opts.AccountID != "" {
		conds = append(conds, structs.HostAccountIs(opts.AccountID))
	}
	return structs.And(conds...)
}

// storageQueryCondition returns the pool level filter of a placement query,
// which only restricts the pool kind.
func storageQueryCondition(opts *structs.QueryOptions) *structs.Condition {
	var conds []*structs.Condition
	if opts.Kind != "" {
		conds = append(conds, structs.PoolKindIs(opts.Kind))
	}
	return structs.And(conds...)
}

// sharedHostConditions returns the explicit host and compute clauses every
// query shape starts from. Options that normalized to an unsatisfiable host
// set contribute a clause matching nothing.
func sharedHostConditions(opts *structs.QueryOptions) []*structs.Condition {
	var conds []*structs.Condition
	if opts.Unsatisfiable() {
		conds = append(conds, structs.False())
	}
	if opts.HasHosts() {
		conds = append(conds, structs.HostIDIn(opts.Hosts))
	}
	if opts.Compute != nil {
		conds = append(conds, structs.HostComputeFreeAtLeast(*opts.Compute))
	}
	return conds
}

// hostEligibleCondition matches hosts that may receive placements: the host
// is in a schedulable state and it has no agent or an active one.
func hostEligibleCondition() *structs.Condition {
	return structs.And(
		structs.HostStateIn(structs.HostSchedulableStates...),
		structs.AgentAbsent().Or(structs.AgentStateIs(structs.StateActive)),
	)
}
