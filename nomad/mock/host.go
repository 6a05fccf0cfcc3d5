// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package mock

import (
	"fmt"

	"github.com/hashicorp/hostpool/helper/uuid"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// Host returns an active host without an agent.
func Host() *structs.Host {
	id := uuid.Generate()
	return &structs.Host{
		ID:          id,
		Name:        fmt.Sprintf("host-%s", id[:8]),
		State:       structs.StateActive,
		ComputeFree: 4000,
		Kind:        "kvm",
		AccountID:   "account-1",
	}
}

// Agent returns an active agent.
func Agent() *structs.Agent {
	return &structs.Agent{
		ID:    uuid.Generate(),
		State: structs.StateActive,
	}
}

// HostWithAgent returns an active host fronted by the given agent.
func HostWithAgent(agent *structs.Agent) *structs.Host {
	host := Host()
	host.AgentID = agent.ID
	return host
}
