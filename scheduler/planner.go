// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Planner turns query options into a single candidate query.
type Planner struct {
	logger hclog.Logger
}

// NewPlanner returns a planner logging through logger.
func NewPlanner(logger hclog.Logger) *Planner {
	return &Planner{logger: logger.Named("planner")}
}

// Plan builds the candidate query for the given options and mode.
//
// Placement queries keep eligible hosts whose host level filters match,
// order them by load (least busy first) and join their active storage pools
// filtered by pool kind. The spread flag is ignored.
//
// Pool-only queries join eligible hosts to their active storage pools,
// apply the combined host and pool filter to the joined row, and order by
// free compute: largest first when spread is set, smallest first otherwise.
func (p *Planner) Plan(opts *structs.QueryOptions, mode structs.CandidateMode, spread bool) (*structs.CandidateQuery, error) {
	opts = opts.Normalize()

	var query *structs.CandidateQuery
	switch mode {
	case structs.CandidateModePlacement:
		query = &structs.CandidateQuery{
			Mode:          mode,
			HostCondition: structs.And(hostEligibleCondition(), hostQueryCondition(opts)),
			PoolCondition: structs.And(structs.PoolStateIs(structs.StateActive), storageQueryCondition(opts)),
			Order:         structs.CandidateOrderLoadAsc,
		}

	case structs.CandidateModePool:
		order := structs.CandidateOrderComputeFreeAsc
		if spread {
			order = structs.CandidateOrderComputeFreeDesc
		}
		query = &structs.CandidateQuery{
			Mode:          mode,
			HostCondition: hostEligibleCondition(),
			PoolCondition: structs.And(structs.PoolStateIs(structs.StateActive), poolQueryCondition(opts)),
			Order:         order,
		}

	default:
		return nil, fmt.Errorf("%w: %s", structs.ErrUnknownCandidateMode, mode)
	}

	p.logger.Trace("planned candidate query", "options", opts, "query", query)
	return query, nil
}
