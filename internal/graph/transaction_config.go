package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Operation names used for transaction configs and routing
const (
	OpSchema      = "schema"
	OpUpsert      = "upsert"
	OpDelete      = "delete"
	OpRead        = "read"
	OpSearch      = "search"
	OpHealthCheck = "health_check"
)

// TransactionConfig defines timeout and metadata for transactions.
// Metadata is logged by Neo4j and visible in query.log.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns configs per operation type
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		// Constraint and index creation can be slow on large graphs
		OpSchema: {
			Timeout:  5 * time.Minute,
			Metadata: map[string]any{"operation": OpSchema, "type": "schema"},
		},
		OpUpsert: {
			Timeout:  2 * time.Minute,
			Metadata: map[string]any{"operation": OpUpsert, "type": "write"},
		},
		// Wipes touch the whole graph
		OpDelete: {
			Timeout:  5 * time.Minute,
			Metadata: map[string]any{"operation": OpDelete, "type": "write"},
		},
		OpRead: {
			Timeout:  30 * time.Second,
			Metadata: map[string]any{"operation": OpRead, "type": "read"},
		},
		OpSearch: {
			Timeout:  30 * time.Second,
			Metadata: map[string]any{"operation": OpSearch, "type": "read"},
		},
		OpHealthCheck: {
			Timeout:  5 * time.Second,
			Metadata: map[string]any{"operation": OpHealthCheck, "type": "read"},
		},
	}
}

// AsNeo4jConfig converts to Neo4j transaction config functions
// for ExecuteRead/ExecuteWrite
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}
	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}
	return configs
}

// GetConfigForOperation retrieves the config for an operation, with a
// 60s fallback for unknown names
func GetConfigForOperation(operation string) TransactionConfig {
	if config, ok := DefaultTransactionConfigs()[operation]; ok {
		return config
	}
	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// WithCustomMetadata returns a copy with one more metadata entry
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	newConfig := TransactionConfig{
		Timeout:  tc.Timeout,
		Metadata: make(map[string]any, len(tc.Metadata)+1),
	}
	for k, v := range tc.Metadata {
		newConfig.Metadata[k] = v
	}
	newConfig.Metadata[key] = value
	return newConfig
}

// IsWrite reports whether the operation must route to the cluster leader
func IsWrite(operation string) bool {
	switch operation {
	case OpSchema, OpUpsert, OpDelete:
		return true
	default:
		return false
	}
}
