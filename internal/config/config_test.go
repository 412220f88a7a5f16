package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

type fakeSecrets struct {
	available bool
	password  string
}

func (f fakeSecrets) IsAvailable() bool                 { return f.available }
func (f fakeSecrets) GetNeo4jPassword() (string, error) { return f.password, nil }

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	result := cfg.Validate(ValidationContextAll)
	assert.False(t, result.HasErrors(), result.Error())
	assert.NoError(t, result.Err())
	assert.Len(t, result.Warnings, 1, "default neo4j password is flagged")
}

func TestApplyEnvOverrides_PasswordPrecedence(t *testing.T) {
	t.Run("env wins over keychain", func(t *testing.T) {
		t.Setenv("NEO4J_PASSWORD", "from-env")
		cfg := Default()
		applyEnvOverrides(cfg, fakeSecrets{available: true, password: "from-keychain"})
		assert.Equal(t, "from-env", cfg.Neo4j.Password)
	})

	t.Run("keychain wins over file", func(t *testing.T) {
		t.Setenv("NEO4J_PASSWORD", "")
		cfg := Default()
		cfg.Neo4j.Password = "from-file"
		applyEnvOverrides(cfg, fakeSecrets{available: true, password: "from-keychain"})
		assert.Equal(t, "from-keychain", cfg.Neo4j.Password)
	})

	t.Run("file when keychain unavailable", func(t *testing.T) {
		t.Setenv("NEO4J_PASSWORD", "")
		cfg := Default()
		cfg.Neo4j.Password = "from-file"
		applyEnvOverrides(cfg, fakeSecrets{available: false, password: "ignored"})
		assert.Equal(t, "from-file", cfg.Neo4j.Password)
	})
}

func TestApplyEnvOverrides_Backend(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "sqlite")
	t.Setenv("GRAPH_FULL_TEXT", "false")
	t.Setenv("SQLITE_PATH", "/tmp/graph.db")
	t.Setenv("NEO4J_URI", "neo4j://db:7687")

	cfg := Default()
	applyEnvOverrides(cfg, nil)

	assert.Equal(t, BackendSQLite, cfg.Graph.Backend)
	assert.False(t, cfg.Graph.FullText)
	assert.Equal(t, "/tmp/graph.db", cfg.SQL.SQLitePath)
	assert.Equal(t, "neo4j://db:7687", cfg.Neo4j.URI)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		ctx     ValidationContext
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Graph.Backend = "dynamo" },
			ctx:     ValidationContextStore,
			wantErr: "graph.backend",
		},
		{
			name:    "bad neo4j scheme",
			mutate:  func(c *Config) { c.Neo4j.URI = "http://localhost:7474" },
			ctx:     ValidationContextStore,
			wantErr: "scheme",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Graph.Backend = BackendPostgres
				c.SQL.PostgresDSN = ""
			},
			ctx:     ValidationContextStore,
			wantErr: "POSTGRES_DSN",
		},
		{
			name:    "relative listing url",
			mutate:  func(c *Config) { c.Sources.ListingURL = "/news/tags/patch-notes/" },
			ctx:     ValidationContextFetch,
			wantErr: "sources.listing_url",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Fetch.Timeout = 0 },
			ctx:     ValidationContextFetch,
			wantErr: "fetch.timeout",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			ctx:     ValidationContextStore,
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate(tt.ctx).Err()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, errors.ErrorTypeConfig, errors.GetType(err))
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv("NEO4J_PASSWORD", "env-pass")
	t.Setenv("GRAPH_BACKEND", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
graph:
  backend: sqlite
sql:
  sqlite_path: /var/lib/patchgraph.db
fetch:
  timeout: 5s
retrieval:
  top_k: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Graph.Backend)
	assert.True(t, cfg.Graph.FullText, "unset fields keep defaults")
	assert.Equal(t, "/var/lib/patchgraph.db", cfg.SQL.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "env-pass", cfg.Neo4j.Password)
}

func TestSave_OmitsPassword(t *testing.T) {
	cfg := Default()
	cfg.Neo4j.Password = "do-not-write"
	cfg.Graph.Backend = BackendPostgres

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write")
	assert.Contains(t, string(data), "postgres")
}

func TestMarshalMasked(t *testing.T) {
	cfg := Default()
	cfg.Neo4j.Password = "supersecret"
	cfg.SQL.PostgresDSN = "postgres://app:hunter22@db:5432/graph?sslmode=disable"

	data, err := cfg.MarshalMasked()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
	assert.NotContains(t, string(data), "hunter22")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "su...et", decoded.Neo4j.Password)
	assert.Equal(t, "postgres://app:***@db:5432/graph?sslmode=disable", decoded.SQL.PostgresDSN)
	assert.Equal(t, "supersecret", cfg.Neo4j.Password, "original is untouched")
}

func TestReadLine(t *testing.T) {
	value, err := readLine(strings.NewReader("  typed-secret \n"))
	require.NoError(t, err)
	assert.Equal(t, "typed-secret", value)

	value, err = readLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", value)
}
