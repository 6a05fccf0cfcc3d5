// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

// SchedulerConfiguration is the cluster wide allocator configuration. It is
// stored in the state store so every invocation reads the value current at
// its own snapshot.
type SchedulerConfiguration struct {
	// SpreadEnabled prefers hosts with the most free compute when selecting
	// storage pools. When false the fullest hosts are preferred instead.
	SpreadEnabled bool

	// CreateIndex/ModifyIndex store the create/modify indexes of this configuration.
	CreateIndex uint64
	ModifyIndex uint64
}

// Copy returns a copy of the configuration.
func (s *SchedulerConfiguration) Copy() *SchedulerConfiguration {
	if s == nil {
		return nil
	}
	ns := *s
	return &ns
}
