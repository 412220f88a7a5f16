package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextStore - load, query and mcp need a graph store
	ValidationContextStore ValidationContext = "store"
	// ValidationContextFetch - current-patch, parse and agents need sources
	ValidationContextFetch ValidationContext = "fetch"
	// ValidationContextAll - pipeline needs both
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	return sb.String()
}

// Err converts a failed result into a config error, nil otherwise
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextStore:
		c.validateStore(result)
	case ValidationContextFetch:
		c.validateSources(result)
		c.validateFetch(result)
	case ValidationContextAll:
		c.validateStore(result)
		c.validateSources(result)
		c.validateFetch(result)
	}
	c.validateLog(result)

	return result
}

func (c *Config) validateStore(result *ValidationResult) {
	switch c.Graph.Backend {
	case BackendNeo4j:
		c.validateNeo4j(result)
	case BackendSQLite:
		if c.SQL.SQLitePath == "" {
			result.AddError("sql.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.SQL.PostgresDSN == "" {
			result.AddError("POSTGRES_DSN is required for the postgres backend")
		} else if !strings.HasPrefix(c.SQL.PostgresDSN, "postgres://") && !strings.HasPrefix(c.SQL.PostgresDSN, "postgresql://") {
			result.AddWarning("POSTGRES_DSN is not a URL; assuming key=value form")
		}
		switch c.SQL.PostgresDriver {
		case "", "pgx", "postgres":
		default:
			result.AddError("sql.postgres_driver must be pgx or postgres (got %q)", c.SQL.PostgresDriver)
		}
	default:
		result.AddError("graph.backend must be one of neo4j, sqlite, postgres (got %q)", c.Graph.Backend)
	}

	if c.Retrieval.TopK <= 0 {
		result.AddError("retrieval.top_k must be positive (got %d)", c.Retrieval.TopK)
	}
}

func (c *Config) validateNeo4j(result *ValidationResult) {
	if c.Neo4j.URI == "" {
		result.AddError("NEO4J_URI is required")
	} else if u, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	} else {
		switch u.Scheme {
		case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
		default:
			result.AddError("NEO4J_URI scheme must be bolt or neo4j (got %q)", u.Scheme)
		}
	}

	if c.Neo4j.User == "" {
		result.AddError("NEO4J_USER is required")
	}
	if c.Neo4j.Password == "" {
		result.AddError("NEO4J_PASSWORD is required (env var, keychain or config file)")
	} else if c.Neo4j.Password == "password" {
		result.AddWarning("NEO4J_PASSWORD is the development default")
	}
	if c.Neo4j.Database == "" {
		result.AddError("NEO4J_DATABASE is required")
	}
}

func (c *Config) validateSources(result *ValidationResult) {
	sources := []struct{ name, value string }{
		{"sources.listing_url", c.Sources.ListingURL},
		{"sources.agents_api_url", c.Sources.AgentsAPIURL},
	}
	for _, src := range sources {
		u, err := url.Parse(src.value)
		if src.value == "" || err != nil || u.Scheme == "" || u.Host == "" {
			result.AddError("%s must be an absolute URL (got %q)", src.name, src.value)
		}
	}
}

func (c *Config) validateFetch(result *ValidationResult) {
	if c.Fetch.Timeout <= 0 {
		result.AddError("fetch.timeout must be positive")
	}
	if c.Fetch.RateLimit < 0 {
		result.AddError("fetch.rate_limit cannot be negative")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch c.Log.Format {
	case "", "text", "json":
	default:
		result.AddError("log.format must be text or json (got %q)", c.Log.Format)
	}
}
