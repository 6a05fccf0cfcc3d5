// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"
)

// CandidateSource is the joined tuple a Condition is evaluated against. Agent
// is nil when the host has no agent, and Pool is nil while the condition is
// evaluated before the storage pool join.
type CandidateSource struct {
	Host  *Host
	Agent *Agent
	Pool  *StoragePool
}

// Condition is a boolean predicate over a CandidateSource. Conditions are
// immutable and are composed with And and Or. Expr renders the predicate in a
// readable form for logs.
type Condition struct {
	expr  string
	match func(*CandidateSource) bool
}

// NewCondition returns a condition with the given expression and predicate.
func NewCondition(expr string, match func(*CandidateSource) bool) *Condition {
	return &Condition{expr: expr, match: match}
}

// True returns a condition that matches every row.
func True() *Condition {
	return &Condition{expr: "true", match: func(*CandidateSource) bool { return true }}
}

// False returns a condition that matches no row.
func False() *Condition {
	return &Condition{expr: "false", match: func(*CandidateSource) bool { return false }}
}

// Match evaluates the condition against the source.
func (c *Condition) Match(src *CandidateSource) bool {
	return c.match(src)
}

// String returns the expression of the condition.
func (c *Condition) String() string {
	return c.expr
}

// And returns the conjunction of c and other.
func (c *Condition) And(other *Condition) *Condition {
	left, right := c, other
	return &Condition{
		expr: left.expr + " and " + right.expr,
		match: func(src *CandidateSource) bool {
			return left.match(src) && right.match(src)
		},
	}
}

// Or returns the disjunction of c and other. The result is parenthesized so
// it can be safely combined with And.
func (c *Condition) Or(other *Condition) *Condition {
	left, right := c, other
	return &Condition{
		expr: "(" + left.expr + " or " + right.expr + ")",
		match: func(src *CandidateSource) bool {
			return left.match(src) || right.match(src)
		},
	}
}

// And returns the conjunction of all conditions, or True when none are given.
func And(conds ...*Condition) *Condition {
	var out *Condition
	for _, c := range conds {
		if c == nil {
			continue
		}
		if out == nil {
			out = c
			continue
		}
		out = out.And(c)
	}
	if out == nil {
		return True()
	}
	return out
}

// HostIDIn matches hosts whose ID is in ids.
func HostIDIn(ids *set.Set[string]) *Condition {
	members := ids.Copy()
	return NewCondition(
		fmt.Sprintf("host.id in %s", quoteList(members.Slice())),
		func(src *CandidateSource) bool {
			return members.Contains(src.Host.ID)
		})
}

// HostComputeFreeAtLeast matches hosts with at least min free compute.
func HostComputeFreeAtLeast(min int64) *Condition {
	return NewCondition(
		fmt.Sprintf("host.compute_free >= %d", min),
		func(src *CandidateSource) bool {
			return src.Host.ComputeFree >= min
		})
}

// HostKindIs matches hosts of the given kind.
func HostKindIs(kind string) *Condition {
	return NewCondition(
		fmt.Sprintf("host.kind == %q", kind),
		func(src *CandidateSource) bool {
			return src.Host.Kind == kind
		})
}

// HostAccountIs matches hosts owned by the given account.
func HostAccountIs(accountID string) *Condition {
	return NewCondition(
		fmt.Sprintf("host.account_id == %q", accountID),
		func(src *CandidateSource) bool {
			return src.Host.AccountID == accountID
		})
}

// HostStateIn matches hosts in any of the given states.
func HostStateIn(states ...string) *Condition {
	allowed := set.From(states)
	return NewCondition(
		fmt.Sprintf("host.state in %s", quoteList(states)),
		func(src *CandidateSource) bool {
			return allowed.Contains(src.Host.State)
		})
}

// AgentAbsent matches rows whose host has no joined agent.
func AgentAbsent() *Condition {
	return NewCondition("agent.id is null", func(src *CandidateSource) bool {
		return src.Agent == nil
	})
}

// AgentStateIs matches rows whose joined agent is in the given state. Rows
// without an agent never match.
func AgentStateIs(state string) *Condition {
	return NewCondition(
		fmt.Sprintf("agent.state == %q", state),
		func(src *CandidateSource) bool {
			return src.Agent != nil && src.Agent.State == state
		})
}

// PoolStateIs matches rows whose joined storage pool is in the given state.
// Rows without a pool never match.
func PoolStateIs(state string) *Condition {
	return NewCondition(
		fmt.Sprintf("storage_pool.state == %q", state),
		func(src *CandidateSource) bool {
			return src.Pool != nil && src.Pool.State == state
		})
}

// PoolKindIs matches rows whose joined storage pool is of the given kind.
// Rows without a pool never match.
func PoolKindIs(kind string) *Condition {
	return NewCondition(
		fmt.Sprintf("storage_pool.kind == %q", kind),
		func(src *CandidateSource) bool {
			return src.Pool != nil && src.Pool.Kind == kind
		})
}

func quoteList(items []string) string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	quoted := make([]string, len(sorted))
	for i, item := range sorted {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
