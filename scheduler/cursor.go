// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"iter"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// openFunc plans and executes the query backing a cursor.
type openFunc func() (structs.CandidateRowIterator, error)

// Cursor is a pull based stream of candidate rows. Nothing is read from the
// store until the first call to Next, which opens the store's read
// transaction. The transaction is released when the stream is exhausted,
// when Next returns an error, when Close is called, or when a loop over
// Rows stops early.
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	ctx     context.Context
	logger  hclog.Logger
	mode    structs.CandidateMode
	volumes []string
	open    openFunc

	iter structs.CandidateRowIterator

	// lastHost and pools track the pools already yielded for the current
	// host. Stores yield the rows of one host contiguously, so this is
	// enough to never repeat a pair.
	lastHost string
	pools    *set.Set[string]

	start     time.Time
	rows      int
	err       error
	exhausted bool
	closed    bool
}

func newCursor(ctx context.Context, logger hclog.Logger, mode structs.CandidateMode, volumes []string, open openFunc) *Cursor {
	return &Cursor{
		ctx:     ctx,
		logger:  logger,
		mode:    mode,
		volumes: volumes,
		open:    open,
	}
}

// Volumes returns the volume IDs the cursor was created for. They do not
// affect which rows are yielded.
func (c *Cursor) Volumes() []string {
	return c.volumes
}

// Mode returns the mode of the underlying query.
func (c *Cursor) Mode() structs.CandidateMode {
	return c.mode
}

// Next returns the next candidate row. It returns nil and no error once the
// stream is exhausted. Once Next returned an error every later call returns
// the same error.
func (c *Cursor) Next() (*structs.CandidateRow, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.closed {
		return nil, nil
	}
	if err := c.ctx.Err(); err != nil {
		return nil, c.fail(err)
	}

	if c.iter == nil {
		c.start = time.Now()
		candidates, err := c.open()
		if err != nil {
			return nil, c.fail(err)
		}
		c.iter = candidates
	}

	for {
		row, err := c.iter.Next()
		if err != nil {
			return nil, c.fail(structs.WrapStorageUnavailable(err))
		}
		if row == nil {
			c.exhausted = true
			c.Close()
			return nil, nil
		}

		if row.HostID != c.lastHost || c.pools == nil {
			c.lastHost = row.HostID
			c.pools = set.New[string](1)
		}
		if !c.pools.Insert(row.StoragePoolID) {
			continue
		}

		c.rows++
		return row, nil
	}
}

// Rows returns an iterator over the remaining rows. The cursor is closed
// when the loop ends, including when it breaks early. An error is yielded
// at most once, as the final element.
func (c *Cursor) Rows() iter.Seq2[*structs.CandidateRow, error] {
	return func(yield func(*structs.CandidateRow, error) bool) {
		defer c.Close()
		for {
			row, err := c.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Collect drains the cursor into a slice.
func (c *Cursor) Collect() ([]*structs.CandidateRow, error) {
	var rows []*structs.CandidateRow
	for row, err := range c.Rows() {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close releases the store transaction. It is safe to call more than once
// and before the first call to Next.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.release()
}

func (c *Cursor) fail(err error) error {
	c.err = err
	if !c.closed {
		c.closed = true
		c.release()
	}
	c.logger.Debug("candidate query failed", "rows", c.rows, "error", err)
	return err
}

func (c *Cursor) release() {
	if c.iter == nil {
		return
	}
	c.iter.Close()
	c.iter = nil
	c.pools = nil

	labels := []metrics.Label{{Name: "mode", Value: c.mode.String()}}
	metrics.MeasureSinceWithLabels([]string{"hostpool", "allocator", "select"}, c.start, labels)
	metrics.IncrCounterWithLabels([]string{"hostpool", "allocator", "rows"}, float32(c.rows), labels)
	if c.exhausted && c.rows == 0 {
		metrics.IncrCounterWithLabels([]string{"hostpool", "allocator", "empty"}, 1, labels)
	}

	c.logger.Debug("released candidate query", "rows", c.rows,
		"duration", time.Since(c.start))
}
