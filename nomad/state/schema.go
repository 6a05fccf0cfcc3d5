// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"
)

const (
	tableIndex = "index"

	TableHosts               = "hosts"
	TableAgents              = "agents"
	TableStoragePools        = "storage_pools"
	TableStoragePoolHostMaps = "storage_pool_host_maps"
	TableInstances           = "instances"
	TableInstanceHostMaps    = "instance_host_maps"
	TableSchedulerConfig     = "scheduler_config"
)

const (
	indexID               = "id"
	indexHostID           = "host_id"
	indexHostPool         = "host_pool"
	indexStoragePoolID    = "storage_pool_id"
	indexInstanceID       = "instance_id"
	indexAgentID          = "agent_id"
	indexComputeFreeAsc   = "compute_free_asc"
	indexComputeFreeDesc  = "compute_free_desc"
	indexRemoved          = "removed"
	indexPrefixSuffix     = "_prefix"
)

var (
	schemaFactories SchemaFactories
	factoriesLock   sync.Mutex
)

// SchemaFactory is the factory method for returning a TableSchema
type SchemaFactory func() *memdb.TableSchema
type SchemaFactories []SchemaFactory

// RegisterSchemaFactories is used to register a table schema.
func RegisterSchemaFactories(factories ...SchemaFactory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	schemaFactories = append(schemaFactories, factories...)
}

func GetFactories() SchemaFactories {
	return schemaFactories
}

func init() {
	// Register all schemas
	RegisterSchemaFactories([]SchemaFactory{
		indexTableSchema,
		hostTableSchema,
		agentTableSchema,
		storagePoolTableSchema,
		storagePoolHostMapTableSchema,
		instanceTableSchema,
		instanceHostMapTableSchema,
		schedulerConfigTableSchema,
	}...)
}

// stateStoreSchema is used to return the schema for the state store
func stateStoreSchema() *memdb.DBSchema {
	// Create the root DB schema
	db := &memdb.DBSchema{
		Tables: make(map[string]*memdb.TableSchema),
	}

	// Add each of the tables
	for _, schemaFn := range GetFactories() {
		schema := schemaFn()
		if _, ok := db.Tables[schema.Name]; ok {
			panic(fmt.Sprintf("duplicate table name: %s", schema.Name))
		}
		db.Tables[schema.Name] = schema
	}
	return db
}

// indexTableSchema is used for tracking the most recent index used for each table.
func indexTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: tableIndex,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:   indexID,
				Unique: true,
				Indexer: &memdb.StringFieldIndex{
					Field:     "Key",
					Lowercase: true,
				},
			},
		},
	}
}

// hostTableSchema returns the MemDB schema for the hosts table. Besides the
// primary key, hosts are indexed by free compute in both directions so that
// pool-only candidate queries can walk hosts in order without sorting.
func hostTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableHosts,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexAgentID: {
				Name:         indexAgentID,
				AllowMissing: true,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "AgentID",
				},
			},
			indexComputeFreeAsc: {
				Name:         indexComputeFreeAsc,
				AllowMissing: false,
				Unique:       true,
				Indexer:      &computeFreeIndex{},
			},
			indexComputeFreeDesc: {
				Name:         indexComputeFreeDesc,
				AllowMissing: false,
				Unique:       true,
				Indexer:      &computeFreeIndex{Descending: true},
			},
		},
	}
}

func agentTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAgents,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

func storagePoolTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableStoragePools,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

// storagePoolHostMapTableSchema returns the MemDB schema for host to storage
// pool associations. The host_pool index orders the associations of one host
// by storage pool ID; it is not unique since nothing stops two association
// rows from naming the same pair.
func storagePoolHostMapTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableStoragePoolHostMaps,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexHostPool: {
				Name:         indexHostPool,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.CompoundIndex{
					Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{
							Field: "HostID",
						},
						&memdb.StringFieldIndex{
							Field: "StoragePoolID",
						},
					},
				},
			},
			indexStoragePoolID: {
				Name:         indexStoragePoolID,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "StoragePoolID",
				},
			},
			indexRemoved: {
				Name:         indexRemoved,
				AllowMissing: true,
				Unique:       true,
				Indexer:      &removedIndex{},
			},
		},
	}
}

func instanceTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableInstances,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

func instanceHostMapTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableInstanceHostMaps,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexHostID: {
				Name:         indexHostID,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "HostID",
				},
			},
			indexInstanceID: {
				Name:         indexInstanceID,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "InstanceID",
				},
			},
		},
	}
}

// schedulerConfigTableSchema returns the MemDB schema for the scheduler
// configuration, a single row table.
func schedulerConfigTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableSchedulerConfig,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: true,
				Unique:       true,

				// This indexer ensures that this table is a singleton
				Indexer: &memdb.ConditionalIndex{
					Conditional: func(obj interface{}) (bool, error) { return true, nil },
				},
			},
		},
	}
}
