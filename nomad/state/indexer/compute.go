// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package indexer

import (
	"encoding/binary"
	"fmt"
)

// SortableInt64 encodes v so that the byte order of encodings matches the
// numeric order of the values. When descending is set the order is inverted.
func SortableInt64(v int64, descending bool) []byte {
	u := uint64(v) ^ (1 << 63)
	if descending {
		u = ^u
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}

// Int64Arg extracts an int64 from an index argument, accepting the integer
// types callers commonly pass.
func Int64Arg(arg interface{}) (int64, error) {
	switch v := arg.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("argument must be an integer: %#v", arg)
	}
}
