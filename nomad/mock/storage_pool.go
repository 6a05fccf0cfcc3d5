// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package mock

import (
	"fmt"

	"github.com/hashicorp/hostpool/helper/uuid"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// StoragePool returns an active storage pool.
func StoragePool() *structs.StoragePool {
	id := uuid.Generate()
	return &structs.StoragePool{
		ID:    id,
		Name:  fmt.Sprintf("pool-%s", id[:8]),
		State: structs.StateActive,
		Kind:  "kvm",
	}
}

// StoragePoolHostMap returns a live association of pool to host.
func StoragePoolHostMap(host *structs.Host, pool *structs.StoragePool) *structs.StoragePoolHostMap {
	return &structs.StoragePoolHostMap{
		ID:            uuid.Generate(),
		HostID:        host.ID,
		StoragePoolID: pool.ID,
	}
}
