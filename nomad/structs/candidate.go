// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
)

// CandidateMode selects the shape of a candidate query.
type CandidateMode uint8

const (
	// CandidateModePlacement selects hosts for an instance placement, with
	// the storage pools attached to each host. Hosts are ordered by load.
	CandidateModePlacement CandidateMode = iota

	// CandidateModePool selects storage pools for volume-only allocations.
	// Hosts are ordered by free compute according to the spread policy.
	CandidateModePool
)

func (m CandidateMode) String() string {
	switch m {
	case CandidateModePlacement:
		return "placement"
	case CandidateModePool:
		return "pool"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseCandidateMode parses the string form of a CandidateMode.
func ParseCandidateMode(s string) (CandidateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "placement", "host", "hosts":
		return CandidateModePlacement, nil
	case "pool", "pools", "volume":
		return CandidateModePool, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCandidateMode, s)
	}
}

// CandidateOrder is the ordering applied to hosts in a candidate query.
type CandidateOrder uint8

const (
	// CandidateOrderLoadAsc orders hosts by the number of instances counted
	// against them, least busy first.
	CandidateOrderLoadAsc CandidateOrder = iota

	// CandidateOrderComputeFreeDesc orders hosts by free compute, largest
	// first, then by host ID. This spreads load across the fleet.
	CandidateOrderComputeFreeDesc

	// CandidateOrderComputeFreeAsc orders hosts by free compute, smallest
	// first, then by host ID. This packs hosts to reduce fragmentation.
	CandidateOrderComputeFreeAsc
)

func (o CandidateOrder) String() string {
	switch o {
	case CandidateOrderLoadAsc:
		return "load asc"
	case CandidateOrderComputeFreeDesc:
		return "host.compute_free desc, host.id asc"
	case CandidateOrderComputeFreeAsc:
		return "host.compute_free asc, host.id asc"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// CandidateQuery is a planned candidate query, ready to be executed by a
// store. HostCondition is evaluated against each host joined to its agent,
// PoolCondition against each host joined to its agent and one live storage
// pool.
type CandidateQuery struct {
	Mode          CandidateMode
	HostCondition *Condition
	PoolCondition *Condition
	Order         CandidateOrder
}

// Validate checks that the query can be executed. Errors wrap
// ErrInvalidCandidateQuery.
func (q *CandidateQuery) Validate() error {
	if q == nil {
		return fmt.Errorf("%w: missing candidate query", ErrInvalidCandidateQuery)
	}

	var mErr *multierror.Error
	switch q.Mode {
	case CandidateModePlacement, CandidateModePool:
	default:
		mErr = multierror.Append(mErr, fmt.Errorf("%w: %d", ErrUnknownCandidateMode, q.Mode))
	}
	if q.HostCondition == nil {
		mErr = multierror.Append(mErr, errors.New("missing host condition"))
	}
	if q.PoolCondition == nil {
		mErr = multierror.Append(mErr, errors.New("missing pool condition"))
	}
	switch q.Order {
	case CandidateOrderLoadAsc, CandidateOrderComputeFreeDesc, CandidateOrderComputeFreeAsc:
	default:
		mErr = multierror.Append(mErr, fmt.Errorf("unknown candidate order %d", q.Order))
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCandidateQuery, err)
	}
	return nil
}

func (q *CandidateQuery) String() string {
	return fmt.Sprintf("mode=%s where host(%s) and pool(%s) order by %s",
		q.Mode, q.HostCondition, q.PoolCondition, q.Order)
}

// CandidateRow is one (host, storage pool) pair yielded by a candidate
// query. Consumers group consecutive rows sharing a HostID into a single
// multi-pool candidate.
type CandidateRow struct {
	HostID        string
	StoragePoolID string
}

func (r *CandidateRow) GoString() string {
	return fmt.Sprintf("<Host: %s Pool: %s>", r.HostID, r.StoragePoolID)
}

// CandidateRowIterator is a lazy stream of candidate rows backed by an open
// store transaction. Next returns nil and no error once the stream is
// exhausted. Close releases the transaction and is safe to call more than
// once.
type CandidateRowIterator interface {
	Next() (*CandidateRow, error)
	Close()
}
