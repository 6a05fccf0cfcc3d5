// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package inventory

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/ast"
	"github.com/hashicorp/hostpool/helper"
	"github.com/hashicorp/hostpool/nomad/structs"
)

// The block types below mirror the inventory file format. Objects default
// to the active state (running for instances) when no state is given.

type agentBlock struct {
	State string `mapstructure:"state"`
}

type hostBlock struct {
	Name        string `mapstructure:"name"`
	State       string `mapstructure:"state"`
	ComputeFree int64  `mapstructure:"compute_free"`
	Kind        string `mapstructure:"kind"`
	AccountID   string `mapstructure:"account_id"`
	AgentID     string `mapstructure:"agent_id"`
}

type storagePoolBlock struct {
	Name  string `mapstructure:"name"`
	State string `mapstructure:"state"`
	Kind  string `mapstructure:"kind"`

	// Hosts is a shorthand for one live storage_pool_host_map per host.
	Hosts []string `mapstructure:"hosts"`
}

type storagePoolHostMapBlock struct {
	HostID        string `mapstructure:"host_id"`
	StoragePoolID string `mapstructure:"storage_pool_id"`
	Removed       string `mapstructure:"removed"`
}

type instanceBlock struct {
	State string `mapstructure:"state"`
}

type instanceHostMapBlock struct {
	InstanceID string `mapstructure:"instance_id"`
	HostID     string `mapstructure:"host_id"`
	State      string `mapstructure:"state"`
}

type schedulerBlock struct {
	Spread bool `mapstructure:"spread"`
}

// ParseFile parses the inventory file at path.
func ParseFile(path string) (*Inventory, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inv, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inventory file %s: %w", path, err)
	}
	return inv, nil
}

// Parse parses an inventory in HCL or JSON from r. Every problem found in
// the file is reported at once. The result is not validated.
func Parse(r io.Reader) (*Inventory, error) {
	// Copy the reader into an in-memory buffer first since HCL requires it.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}

	root, err := hcl.ParseBytes(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error parsing: %w", err)
	}

	// Top-level item should be a list
	list, ok := root.Node.(*ast.ObjectList)
	if !ok {
		return nil, fmt.Errorf("error parsing: root should be an object")
	}

	valid := []string{
		"agent",
		"host",
		"storage_pool",
		"storage_pool_host_map",
		"instance",
		"instance_host_map",
		"scheduler",
	}
	if err := helper.CheckHCLKeys(list, valid); err != nil {
		return nil, err
	}

	var mErr multierror.Error
	inv := &Inventory{}

	parseBlocks(&mErr, list, "agent", []string{"state"},
		func(id string, b *agentBlock) error {
			inv.Agents = append(inv.Agents, &structs.Agent{
				ID:    id,
				State: stateOr(b.State, structs.StateActive),
			})
			return nil
		})

	parseBlocks(&mErr, list, "host",
		[]string{"name", "state", "compute_free", "kind", "account_id", "agent_id"},
		func(id string, b *hostBlock) error {
			inv.Hosts = append(inv.Hosts, &structs.Host{
				ID:          id,
				Name:        b.Name,
				State:       stateOr(b.State, structs.StateActive),
				ComputeFree: b.ComputeFree,
				Kind:        b.Kind,
				AccountID:   b.AccountID,
				AgentID:     b.AgentID,
			})
			return nil
		})

	parseBlocks(&mErr, list, "storage_pool", []string{"name", "state", "kind", "hosts"},
		func(id string, b *storagePoolBlock) error {
			inv.StoragePools = append(inv.StoragePools, &structs.StoragePool{
				ID:    id,
				Name:  b.Name,
				State: stateOr(b.State, structs.StateActive),
				Kind:  b.Kind,
			})
			for _, hostID := range b.Hosts {
				inv.StoragePoolHostMaps = append(inv.StoragePoolHostMaps, &structs.StoragePoolHostMap{
					ID:            id + "/" + hostID,
					HostID:        hostID,
					StoragePoolID: id,
				})
			}
			return nil
		})

	parseBlocks(&mErr, list, "storage_pool_host_map", []string{"host_id", "storage_pool_id", "removed"},
		func(id string, b *storagePoolHostMapBlock) error {
			m := &structs.StoragePoolHostMap{
				ID:            id,
				HostID:        b.HostID,
				StoragePoolID: b.StoragePoolID,
			}
			if b.Removed != "" {
				removed, err := time.Parse(time.RFC3339, b.Removed)
				if err != nil {
					return fmt.Errorf("removed can't parse time %s", b.Removed)
				}
				m.Removed = &removed
			}
			inv.StoragePoolHostMaps = append(inv.StoragePoolHostMaps, m)
			return nil
		})

	parseBlocks(&mErr, list, "instance", []string{"state"},
		func(id string, b *instanceBlock) error {
			inv.Instances = append(inv.Instances, &structs.Instance{
				ID:    id,
				State: stateOr(b.State, structs.InstanceStateRunning),
			})
			return nil
		})

	parseBlocks(&mErr, list, "instance_host_map", []string{"instance_id", "host_id", "state"},
		func(id string, b *instanceHostMapBlock) error {
			inv.InstanceHostMaps = append(inv.InstanceHostMaps, &structs.InstanceHostMap{
				ID:         id,
				InstanceID: b.InstanceID,
				HostID:     b.HostID,
				State:      stateOr(b.State, structs.StateActive),
			})
			return nil
		})

	if o := list.Filter("scheduler"); len(o.Items) > 0 {
		config, err := parseScheduler(o)
		if err != nil {
			_ = multierror.Append(&mErr, multierror.Prefix(err, "scheduler ->"))
		}
		inv.SchedulerConfig = config
	}

	if err := mErr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return inv, nil
}

// parseBlocks decodes every labeled block of the given type and hands it to
// fn with its label. Errors are collected into mErr, prefixed with the
// block type and label.
func parseBlocks[T any](mErr *multierror.Error, list *ast.ObjectList, blockType string,
	valid []string, fn func(id string, block *T) error) {

	blocks := list.Filter(blockType)
	if len(blocks.Elem().Items) > 0 {
		_ = multierror.Append(mErr, fmt.Errorf("%s: block must have an ID label", blockType))
	}

	for _, item := range blocks.Children().Items {
		id := item.Keys[0].Token.Value().(string)
		prefix := fmt.Sprintf("%s %q ->", blockType, id)

		if len(item.Keys) != 1 {
			_ = multierror.Append(mErr, fmt.Errorf("%s: only one label allowed", prefix))
			continue
		}
		if err := helper.CheckHCLKeys(item.Val, valid); err != nil {
			_ = multierror.Append(mErr, multierror.Prefix(err, prefix))
			continue
		}

		var m map[string]interface{}
		if err := hcl.DecodeObject(&m, item.Val); err != nil {
			_ = multierror.Append(mErr, multierror.Prefix(err, prefix))
			continue
		}

		var block T
		if err := mapstructure.WeakDecode(m, &block); err != nil {
			_ = multierror.Append(mErr, multierror.Prefix(err, prefix))
			continue
		}
		if err := fn(id, &block); err != nil {
			_ = multierror.Append(mErr, multierror.Prefix(err, prefix))
		}
	}
}

func parseScheduler(list *ast.ObjectList) (*structs.SchedulerConfiguration, error) {
	list = list.Elem()
	if len(list.Items) > 1 {
		return nil, fmt.Errorf("only one 'scheduler' block allowed")
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("block must not have a label")
	}

	o := list.Items[0]
	if err := helper.CheckHCLKeys(o.Val, []string{"spread"}); err != nil {
		return nil, err
	}

	var m map[string]interface{}
	if err := hcl.DecodeObject(&m, o.Val); err != nil {
		return nil, err
	}

	var block schedulerBlock
	if err := mapstructure.WeakDecode(m, &block); err != nil {
		return nil, err
	}
	return &structs.SchedulerConfiguration{SpreadEnabled: block.Spread}, nil
}

func stateOr(state, def string) string {
	if state == "" {
		return def
	}
	return state
}
