// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package mock

import (
	"github.com/hashicorp/hostpool/helper/uuid"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Instance returns a running instance.
func Instance() *structs.Instance {
	return &structs.Instance{
		ID:    uuid.Generate(),
		State: structs.InstanceStateRunning,
	}
}

// InstanceHostMap returns an active assignment of instance to host.
func InstanceHostMap(instance *structs.Instance, host *structs.Host) *structs.InstanceHostMap {
	return &structs.InstanceHostMap{
		ID:         uuid.Generate(),
		InstanceID: instance.ID,
		HostID:     host.ID,
		State:      structs.StateActive,
	}
}
