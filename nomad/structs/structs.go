// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

var (
	// ErrStorageUnavailable wraps any failure of the backing store to run a
	// candidate query or to produce the next row.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnknownCandidateMode is returned when a query names a mode the
	// planner does not implement.
	ErrUnknownCandidateMode = errors.New("unknown candidate mode")

	// ErrInvalidCandidateQuery wraps every reason a planned query is
	// rejected before it runs.
	ErrInvalidCandidateQuery = errors.New("invalid candidate query")
)

// WrapStorageUnavailable wraps err with ErrStorageUnavailable unless it
// already is.
func WrapStorageUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// Common lifecycle states shared by hosts, agents, storage pools and the
// instance host mapping table.
const (
	StateActive         = "active"
	StateInactive       = "inactive"
	StateUpdatingActive = "updating-active"
	StateActivating     = "activating"
	StateDeactivating   = "deactivating"
	StateRemoved        = "removed"
	StatePurged         = "purged"
)

// Instance states. Only InstanceStateStarting is consulted by the
// allocator, the rest exist so inventories can describe real clusters.
const (
	InstanceStateCreating = "creating"
	InstanceStateStarting = "starting"
	InstanceStateRunning  = "running"
	InstanceStateStopping = "stopping"
	InstanceStateStopped  = "stopped"
)

// HostSchedulableStates are the host states that may receive new placements.
var HostSchedulableStates = []string{StateActive, StateUpdatingActive}

// HostStateSchedulable returns whether a host in the given state may be
// offered as a candidate.
func HostStateSchedulable(state string) bool {
	for _, s := range HostSchedulableStates {
		if s == state {
			return true
		}
	}
	return false
}

// IDGetter must be implemented by any object listed through the CLI or
// persisted in a snapshot.
type IDGetter interface {
	GetID() string
}

// msgpackHandle is a shared handle for encoding/decoding of structs
var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true

	// Sets the default type for decoding a map into a nil interface{}.
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}()

// MsgpackHandle is the handle used by state snapshots.
var MsgpackHandle = msgpackHandle

// Decode is used to decode a MsgPack encoded object
func Decode(buf []byte, out interface{}) error {
	return codec.NewDecoder(bytes.NewReader(buf), msgpackHandle).Decode(out)
}

// Encode is used to encode a MsgPack object
func Encode(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := codec.NewEncoder(&buf, msgpackHandle).Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", msg, err)
	}
	return buf.Bytes(), nil
}
