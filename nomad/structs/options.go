// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/hostpool/helper/pointer"
)

// QueryOptions narrows the set of candidates returned by the allocator. Every
// field is optional and an unset field imposes no constraint. QueryOptions is
// treated as immutable once handed to the allocator.
type QueryOptions struct {
	// Hosts restricts candidates to an explicit set of host IDs. A nil or
	// empty set means any host.
	Hosts *set.Set[string]

	// Compute is the minimum free compute a host must have.
	Compute *int64

	// Kind restricts hosts, and storage pools, to the given kind.
	Kind string

	// AccountID restricts hosts to those owned by the given account.
	AccountID string

	// unsatisfiable is set by Normalize when the options can match nothing.
	unsatisfiable bool
}

// NewQueryOptions returns options restricted to the given host IDs.
func NewQueryOptions(hostIDs ...string) *QueryOptions {
	return &QueryOptions{Hosts: set.From(hostIDs)}
}

// Copy returns a deep copy of the options.
func (o *QueryOptions) Copy() *QueryOptions {
	if o == nil {
		return nil
	}
	no := *o
	if o.Hosts != nil {
		no.Hosts = o.Hosts.Copy()
	}
	no.Compute = pointer.Copy(o.Compute)
	return &no
}

// HasHosts returns whether an explicit host set was requested.
func (o *QueryOptions) HasHosts() bool {
	return o.Hosts != nil && o.Hosts.Size() > 0
}

// HostIDs returns the explicit host IDs in sorted order.
func (o *QueryOptions) HostIDs() []string {
	if o.Hosts == nil {
		return nil
	}
	ids := o.Hosts.Slice()
	sort.Strings(ids)
	return ids
}

// Unsatisfiable returns true when Normalize found the options can never
// match a host.
func (o *QueryOptions) Unsatisfiable() bool {
	return o.unsatisfiable
}

// Normalize returns a normalized copy of the options. Surrounding whitespace
// is trimmed from Kind and AccountID, blank host IDs are dropped, and an
// explicit host set that only held blank IDs marks the options unsatisfiable
// instead of silently widening to every host. A nil receiver yields empty
// options.
func (o *QueryOptions) Normalize() *QueryOptions {
	if o == nil {
		return &QueryOptions{}
	}

	n := o.Copy()
	n.Kind = strings.TrimSpace(n.Kind)
	n.AccountID = strings.TrimSpace(n.AccountID)

	if o.HasHosts() {
		hosts := set.New[string](o.Hosts.Size())
		for _, id := range o.Hosts.Slice() {
			if id = strings.TrimSpace(id); id != "" {
				hosts.Insert(id)
			}
		}
		if hosts.Empty() {
			n.unsatisfiable = true
		}
		n.Hosts = hosts
	}

	return n
}

// String returns a compact description of the options for logging.
func (o *QueryOptions) String() string {
	if o == nil {
		return "<none>"
	}

	var parts []string
	if o.HasHosts() {
		parts = append(parts, fmt.Sprintf("hosts=%s", strings.Join(o.HostIDs(), ",")))
	}
	if o.Compute != nil {
		parts = append(parts, fmt.Sprintf("compute>=%d", *o.Compute))
	}
	if o.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", o.Kind))
	}
	if o.AccountID != "" {
		parts = append(parts, fmt.Sprintf("account=%s", o.AccountID))
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, " ")
}
