package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

// Graph backends
const (
	BackendNeo4j    = "neo4j"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration settings
type Config struct {
	// Graph store selection
	Graph GraphConfig `yaml:"graph" mapstructure:"graph"`

	// Neo4j connection
	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`

	// Relational graph store
	SQL SQLConfig `yaml:"sql" mapstructure:"sql"`

	// Upstream pages and APIs
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`

	// HTTP fetching
	Fetch FetchConfig `yaml:"fetch" mapstructure:"fetch"`

	// Query defaults
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`

	// Pipeline artifacts
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Logging
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

type GraphConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // "neo4j", "sqlite", "postgres"
	FullText bool   `yaml:"full_text" mapstructure:"full_text"`
}

type Neo4jConfig struct {
	URI           string `yaml:"uri" mapstructure:"uri"`
	User          string `yaml:"user" mapstructure:"user"`
	Password      string `yaml:"password" mapstructure:"password"`
	Database      string `yaml:"database" mapstructure:"database"`
	SchemaFile    string `yaml:"schema_file" mapstructure:"schema_file"` // empty = built-in constraints
	FullTextIndex string `yaml:"full_text_index" mapstructure:"full_text_index"`
}

type SQLConfig struct {
	SQLitePath     string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresDSN    string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	PostgresDriver string `yaml:"postgres_driver" mapstructure:"postgres_driver"` // "pgx" or "postgres" (lib/pq)
}

type SourcesConfig struct {
	ListingURL   string `yaml:"listing_url" mapstructure:"listing_url"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	AgentsAPIURL string `yaml:"agents_api_url" mapstructure:"agents_api_url"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second, 0 disables
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	CacheFile string        `yaml:"cache_file" mapstructure:"cache_file"` // bbolt file, empty disables
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

type OutputConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

type LogConfig struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Format    string `yaml:"format" mapstructure:"format"` // "text" or "json"
	File      string `yaml:"file" mapstructure:"file"`     // empty = console only
	MaxSizeMB int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" mapstructure:"max_files"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			Backend:  BackendNeo4j,
			FullText: true,
		},
		Neo4j: Neo4jConfig{
			URI:           "bolt://localhost:7687",
			User:          "neo4j",
			Password:      "password",
			Database:      "neo4j",
			FullTextIndex: "change_text_ft",
		},
		SQL: SQLConfig{
			SQLitePath:     "data/patchgraph.db",
			PostgresDriver: "pgx",
		},
		Sources: SourcesConfig{
			ListingURL:   "https://playvalorant.com/en-us/news/tags/patch-notes/",
			BaseURL:      "https://playvalorant.com",
			AgentsAPIURL: "https://valorant-api.com/v1/agents?isPlayableCharacter=true",
		},
		Fetch: FetchConfig{
			Timeout:   20 * time.Second,
			RateLimit: 2,
			UserAgent: "Mozilla/5.0 (compatible; patchgraph/1.0)",
		},
		Retrieval: RetrievalConfig{
			TopK: 8,
		},
		Output: OutputConfig{
			Directory: "data",
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			MaxSizeMB: 100,
			MaxFiles:  5,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("graph", cfg.Graph)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("sql", cfg.SQL)
	v.SetDefault("sources", cfg.Sources)
	v.SetDefault("fetch", cfg.Fetch)
	v.SetDefault("retrieval", cfg.Retrieval)
	v.SetDefault("output", cfg.Output)
	v.SetDefault("log", cfg.Log)

	v.SetEnvPrefix("PATCHGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".patchgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".patchgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "failed to read config")
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "failed to unmarshal config")
	}

	applyEnvOverrides(cfg, NewKeyringManager())

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".patchgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// secretSource is the subset of KeyringManager used for overrides
type secretSource interface {
	IsAvailable() bool
	GetNeo4jPassword() (string, error)
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config, secrets secretSource) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Neo4j.Database = db
	}

	// Precedence: 1. Env var 2. Keychain 3. Config file
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	} else if secrets != nil && secrets.IsAvailable() {
		if stored, err := secrets.GetNeo4jPassword(); err == nil && stored != "" {
			cfg.Neo4j.Password = stored
		}
	}

	if backend := os.Getenv("GRAPH_BACKEND"); backend != "" {
		cfg.Graph.Backend = backend
	}
	if fullText := os.Getenv("GRAPH_FULL_TEXT"); fullText != "" {
		if enabled, err := strconv.ParseBool(fullText); err == nil {
			cfg.Graph.FullText = enabled
		}
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SQL.SQLitePath = expandPath(path)
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.SQL.PostgresDSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. The Neo4j password is never written;
// use the keychain or NEO4J_PASSWORD instead.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	neo := c.Neo4j
	neo.Password = ""

	v.Set("graph", c.Graph)
	v.Set("neo4j", neo)
	v.Set("sql", c.SQL)
	v.Set("sources", c.Sources)
	v.Set("fetch", c.Fetch)
	v.Set("retrieval", c.Retrieval)
	v.Set("output", c.Output)
	v.Set("log", c.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "failed to create config directory %s", dir)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return errors.FileSystemErrorf(err, "failed to write config %s", path)
	}

	return nil
}
