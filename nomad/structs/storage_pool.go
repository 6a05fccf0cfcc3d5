// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// StoragePool is a logical volume-backing resource that may be attached to
// one or more hosts.
type StoragePool struct {
	ID    string
	Name  string
	State string
	Kind  string

	CreateIndex uint64
	ModifyIndex uint64
}

// GetID implements the IDGetter interface.
func (p *StoragePool) GetID() string {
	if p == nil {
		return ""
	}
	return p.ID
}

// Copy returns a copy of the storage pool.
func (p *StoragePool) Copy() *StoragePool {
	if p == nil {
		return nil
	}
	np := *p
	return &np
}

// Active returns true if volumes may be placed in the pool.
func (p *StoragePool) Active() bool {
	return p.State == StateActive
}

// Validate returns all problems with the storage pool definition.
func (p *StoragePool) Validate() error {
	var mErr *multierror.Error
	if p.ID == "" {
		mErr = multierror.Append(mErr, errors.New("missing storage pool ID"))
	}
	if p.State == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("storage pool %q: missing state", p.ID))
	}
	return mErr.ErrorOrNil()
}

// StoragePoolHostMap associates a storage pool with a host. Associations
// are soft deleted: Removed records when the link was dropped and the row is
// kept until it is purged.
type StoragePoolHostMap struct {
	ID            string
	HostID        string
	StoragePoolID string
	Removed       *time.Time

	CreateIndex uint64
	ModifyIndex uint64
}

// GetID implements the IDGetter interface.
func (m *StoragePoolHostMap) GetID() string {
	if m == nil {
		return ""
	}
	return m.ID
}

// Copy returns a copy of the mapping.
func (m *StoragePoolHostMap) Copy() *StoragePoolHostMap {
	if m == nil {
		return nil
	}
	nm := *m
	if m.Removed != nil {
		removed := *m.Removed
		nm.Removed = &removed
	}
	return &nm
}

// Live returns true if the association has not been removed.
func (m *StoragePoolHostMap) Live() bool {
	return m.Removed == nil
}

// Validate returns all problems with the mapping definition.
func (m *StoragePoolHostMap) Validate() error {
	var mErr *multierror.Error
	if m.ID == "" {
		mErr = multierror.Append(mErr, errors.New("missing storage pool host map ID"))
	}
	if m.HostID == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("storage pool host map %q: missing host ID", m.ID))
	}
	if m.StoragePoolID == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("storage pool host map %q: missing storage pool ID", m.ID))
	}
	return mErr.ErrorOrNil()
}
