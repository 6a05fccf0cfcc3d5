// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Instance is a workload placed, or being placed, on a host.
type Instance struct {
	ID    string
	State string

	CreateIndex uint64
	ModifyIndex uint64
}

// GetID implements the IDGetter interface.
func (i *Instance) GetID() string {
	if i == nil {
		return ""
	}
	return i.ID
}

// Copy returns a copy of the instance.
func (i *Instance) Copy() *Instance {
	if i == nil {
		return nil
	}
	ni := *i
	return &ni
}

// Validate returns all problems with the instance definition.
func (i *Instance) Validate() error {
	var mErr *multierror.Error
	if i.ID == "" {
		mErr = multierror.Append(mErr, errors.New("missing instance ID"))
	}
	if i.State == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("instance %q: missing state", i.ID))
	}
	return mErr.ErrorOrNil()
}

// InstanceHostMap assigns an instance to a host.
type InstanceHostMap struct {
	ID         string
	InstanceID string
	HostID     string
	State      string

	CreateIndex uint64
	ModifyIndex uint64
}

// GetID implements the IDGetter interface.
func (m *InstanceHostMap) GetID() string {
	if m == nil {
		return ""
	}
	return m.ID
}

// Copy returns a copy of the mapping.
func (m *InstanceHostMap) Copy() *InstanceHostMap {
	if m == nil {
		return nil
	}
	nm := *m
	return &nm
}

// CountsAsLoad returns whether the assignment adds to its host's load. An
// active assignment always counts. An inactive assignment still counts while
// the instance is starting, since that placement is in flight. The instance
// may be nil when the referenced row does not exist.
func (m *InstanceHostMap) CountsAsLoad(instance *Instance) bool {
	switch m.State {
	case StateActive:
		return true
	case StateInactive:
		return instance != nil && instance.State == InstanceStateStarting
	default:
		return false
	}
}

// Validate returns all problems with the mapping definition.
func (m *InstanceHostMap) Validate() error {
	var mErr *multierror.Error
	if m.ID == "" {
		mErr = multierror.Append(mErr, errors.New("missing instance host map ID"))
	}
	if m.InstanceID == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("instance host map %q: missing instance ID", m.ID))
	}
	if m.HostID == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("instance host map %q: missing host ID", m.ID))
	}
	return mErr.ErrorOrNil()
}
