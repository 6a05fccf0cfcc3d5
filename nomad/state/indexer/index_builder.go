// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package indexer

import (
	"bytes"
	"encoding/binary"
	"time"
)

// IndexBuilder is a buffer used to construct memdb index values.
type IndexBuilder bytes.Buffer

// Raw appends the bytes without a null terminator to the buffer. Raw should
// only be used when v has a fixed length, or when building the last segment of
// a prefix index.
func (b *IndexBuilder) Raw(v []byte) {
	(*bytes.Buffer)(b).Write(v)
}

// String appends the string and a null terminator to the buffer.
func (b *IndexBuilder) String(v string) {
	(*bytes.Buffer)(b).WriteString(v)
	(*bytes.Buffer)(b).WriteString("\x00")
}

// Int64 appends an order preserving encoding of v. When descending is set,
// larger values sort first.
func (b *IndexBuilder) Int64(v int64, descending bool) {
	b.Raw(SortableInt64(v, descending))
}

// Time appends the Unix nanosecond timestamp of v in big endian order so that
// earlier times sort first.
func (b *IndexBuilder) Time(v time.Time) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v.UnixNano()))
	b.Raw(buf)
}

// Bytes returns the contents of the buffer.
func (b *IndexBuilder) Bytes() []byte {
	return (*bytes.Buffer)(b).Bytes()
}
