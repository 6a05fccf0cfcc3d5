// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"

	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/hostpool/ci"
	"github.com/shoenig/test/must"
)

func TestCondition_Match(t *testing.T) {
	ci.Parallel(t)

	host := &Host{ID: "h1", State: StateActive, ComputeFree: 10, Kind: "x", AccountID: "acct"}
	agent := &Agent{ID: "a1", State: StateInactive}
	pool := &StoragePool{ID: "p1", State: StateActive, Kind: "y"}

	withAgent := &CandidateSource{Host: host, Agent: agent, Pool: pool}
	bare := &CandidateSource{Host: host}

	cases := []struct {
		name  string
		cond  *Condition
		src   *CandidateSource
		match bool
	}{
		{"true", True(), bare, true},
		{"false", False(), bare, false},
		{"host id in", HostIDIn(set.From([]string{"h1", "h2"})), bare, true},
		{"host id not in", HostIDIn(set.From([]string{"h2"})), bare, false},
		{"compute equal", HostComputeFreeAtLeast(10), bare, true},
		{"compute above", HostComputeFreeAtLeast(11), bare, false},
		{"host kind", HostKindIs("x"), bare, true},
		{"host kind mismatch", HostKindIs("y"), bare, false},
		{"account", HostAccountIs("acct"), bare, true},
		{"account mismatch", HostAccountIs("other"), bare, false},
		{"host state", HostStateIn(HostSchedulableStates...), bare, true},
		{"host state mismatch", HostStateIn(StateInactive), bare, false},
		{"agent absent", AgentAbsent(), bare, true},
		{"agent present", AgentAbsent(), withAgent, false},
		{"agent state", AgentStateIs(StateInactive), withAgent, true},
		{"agent state without agent", AgentStateIs(StateInactive), bare, false},
		{"pool state", PoolStateIs(StateActive), withAgent, true},
		{"pool state without pool", PoolStateIs(StateActive), bare, false},
		{"pool kind", PoolKindIs("y"), withAgent, true},
		{"pool kind without pool", PoolKindIs("y"), bare, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			must.Eq(t, tc.match, tc.cond.Match(tc.src))
		})
	}
}

func TestCondition_Compose(t *testing.T) {
	ci.Parallel(t)

	src := &CandidateSource{Host: &Host{ID: "h1", Kind: "x"}}

	must.True(t, True().And(True()).Match(src))
	must.False(t, True().And(False()).Match(src))
	must.True(t, False().Or(True()).Match(src))
	must.False(t, False().Or(False()).Match(src))

	// And skips nil conditions and defaults to true.
	must.True(t, And().Match(src))
	must.True(t, And(nil, nil).Match(src))
	must.False(t, And(nil, False()).Match(src))
	must.Eq(t, "true", And().String())
}

func TestCondition_String(t *testing.T) {
	ci.Parallel(t)

	cond := And(
		HostIDIn(set.From([]string{"h2", "h1"})),
		HostComputeFreeAtLeast(4),
		HostKindIs("x").And(PoolKindIs("x")),
		AgentAbsent().Or(AgentStateIs(StateActive)),
	)
	must.Eq(t, `host.id in ["h1", "h2"] and host.compute_free >= 4 and `+
		`host.kind == "x" and storage_pool.kind == "x" and `+
		`(agent.id is null or agent.state == "active")`, cond.String())
}

func TestCondition_HostIDInCopiesSet(t *testing.T) {
	ci.Parallel(t)

	ids := set.From([]string{"h1"})
	cond := HostIDIn(ids)
	ids.Insert("h2")

	must.False(t, cond.Match(&CandidateSource{Host: &Host{ID: "h2"}}))
}
