// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

var ErrMemDBInvariant = errors.New("memdb invariant failure")

// SortOption selects the direction an index is walked in.
type SortOption bool

const (
	// SortDefault walks the index in ascending order.
	SortDefault SortOption = false

	// SortReverse walks the index in descending order.
	SortReverse SortOption = true
)

func getSorted(txn ReadTxn, sort SortOption, table, index string, args ...any) (memdb.ResultIterator, error) {
	if sort == SortReverse {
		return txn.GetReverse(table, index, args...)
	}
	return txn.Get(table, index, args...)
}

// ResultIterator is a typed view over a memdb.ResultIterator.
type ResultIterator[T comparable] interface {
	WatchCh() <-chan struct{}
	Next() T
}

type resultIterator[T comparable] struct {
	iter memdb.ResultIterator
}

// NewResultIterator wraps iter so that Next returns values of type T. The
// zero value of T is returned once the iterator is exhausted.
func NewResultIterator[T comparable](iter memdb.ResultIterator) ResultIterator[T] {
	return &resultIterator[T]{iter: iter}
}

func (r *resultIterator[T]) WatchCh() <-chan struct{} {
	return r.iter.WatchCh()
}

func (r *resultIterator[T]) Next() T {
	raw := r.iter.Next()
	if raw == nil {
		return *(new(T))
	}
	return raw.(T)
}

func Get[T comparable](txn ReadTxn, table, index string, args ...any) (ResultIterator[T], error) {
	iter, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, err
	}
	return NewResultIterator[T](iter), nil
}

// Collect drains iter into a slice.
func Collect[T comparable](iter ResultIterator[T]) []T {
	var zero T
	var out []T
	for raw := iter.Next(); raw != zero; raw = iter.Next() {
		out = append(out, raw)
	}
	return out
}

func First[T comparable](txn ReadTxn, table, index string, args ...any) (T, error) {
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return *(new(T)), err
	}
	if raw == nil {
		return *(new(T)), nil
	}
	out, ok := raw.(T)
	if !ok {
		return *(new(T)), fmt.Errorf("%w: unexpected type %T in table %q", ErrMemDBInvariant, raw, table)
	}
	return out, nil
}

func FirstWatch[T comparable](txn ReadTxn, table, index string, args ...any) (<-chan struct{}, T, error) {
	ch, raw, err := txn.FirstWatch(table, index, args...)
	if err != nil {
		return ch, *(new(T)), err
	}
	if raw == nil {
		return ch, *(new(T)), nil
	}
	out, ok := raw.(T)
	if !ok {
		return ch, *(new(T)), fmt.Errorf("%w: unexpected type %T in table %q", ErrMemDBInvariant, raw, table)
	}
	return ch, out, nil
}
