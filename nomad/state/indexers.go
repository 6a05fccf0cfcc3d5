// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"time"

	"github.com/hashicorp/hostpool/nomad/state/indexer"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// computeFreeIndex indexes hosts by free compute followed by host ID. The ID
// suffix makes the index unique and gives hosts with equal free compute a
// stable ascending ID order in both directions.
type computeFreeIndex struct {
	Descending bool
}

func (c *computeFreeIndex) FromObject(obj interface{}) (bool, []byte, error) {
	host, ok := obj.(*structs.Host)
	if !ok {
		return false, nil, fmt.Errorf("unexpected type %T for host index", obj)
	}

	var b indexer.IndexBuilder
	b.Int64(host.ComputeFree, c.Descending)
	b.String(host.ID)
	return true, b.Bytes(), nil
}

// FromArgs accepts the free compute and, optionally, the host ID.
func (c *computeFreeIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("compute index takes one or two arguments, got %d", len(args))
	}
	compute, err := indexer.Int64Arg(args[0])
	if err != nil {
		return nil, err
	}

	var b indexer.IndexBuilder
	b.Int64(compute, c.Descending)
	if len(args) == 2 {
		id, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("host ID argument must be a string: %#v", args[1])
		}
		b.String(id)
	}
	return b.Bytes(), nil
}

func (c *computeFreeIndex) PrefixFromArgs(args ...interface{}) ([]byte, error) {
	return c.FromArgs(args...)
}

// removedIndex indexes soft deleted storage pool host maps by the time they
// were removed. Live maps are left out of the index.
type removedIndex struct{}

func (r *removedIndex) FromObject(obj interface{}) (bool, []byte, error) {
	m, ok := obj.(*structs.StoragePoolHostMap)
	if !ok {
		return false, nil, fmt.Errorf("unexpected type %T for removed index", obj)
	}
	if m.Removed == nil {
		return false, nil, nil
	}

	var b indexer.IndexBuilder
	b.Time(*m.Removed)
	b.String(m.ID)
	return true, b.Bytes(), nil
}

func (r *removedIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("removed index takes one argument, got %d", len(args))
	}
	var b indexer.IndexBuilder
	switch v := args[0].(type) {
	case time.Time:
		b.Time(v)
	case *time.Time:
		b.Time(*v)
	default:
		return nil, fmt.Errorf("unexpected type %T for removed index", v)
	}
	return b.Bytes(), nil
}
