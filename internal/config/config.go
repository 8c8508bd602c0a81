// Package config loads graphbulk settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/systemshift/graphbulk/internal/bulk/session"
	"github.com/systemshift/graphbulk/internal/bulk/sink"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Import ImportConfig `yaml:"import"`
	Sink   SinkConfig   `yaml:"sink"`
	Neo4j  Neo4jConfig  `yaml:"neo4j"`
}

// ServerConfig holds HTTP settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ImportConfig holds session settings
type ImportConfig struct {
	Workers     int    `yaml:"workers"`
	OrdinalBase int64  `yaml:"ordinal_base"`
	Policy      string `yaml:"policy"` // skip or abort
}

// SinkConfig selects where records go
type SinkConfig struct {
	Type string `yaml:"type"` // memory, file, sqlite, neo4j
	Path string `yaml:"path"`
}

// Neo4jConfig holds Neo4j connection and schema settings
type Neo4jConfig struct {
	URI            string   `yaml:"uri"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Database       string   `yaml:"database"`
	NodeLabel      string   `yaml:"node_label"`
	EdgeType       string   `yaml:"edge_type"`
	NodeProperties []string `yaml:"node_properties"`
	EdgeProperties []string `yaml:"edge_properties"`
	BatchSize      int      `yaml:"batch_size"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Import: ImportConfig{Workers: 4, Policy: "skip"},
		Sink:   SinkConfig{Type: sink.TypeFile, Path: "bulk"},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Password: "password",
			Database: "neo4j",
		},
	}
}

// Load reads path when it is non-empty, applies environment overrides and
// validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("GRAPHBULK_PORT", c.Server.Port)
	c.Log.Level = getEnv("GRAPHBULK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("GRAPHBULK_LOG_FORMAT", c.Log.Format)
	c.Import.Policy = getEnv("GRAPHBULK_POLICY", c.Import.Policy)
	c.Sink.Type = getEnv("GRAPHBULK_SINK", c.Sink.Type)
	c.Sink.Path = getEnv("GRAPHBULK_SINK_PATH", c.Sink.Path)
	c.Neo4j.URI = getEnv("NEO4J_URI", c.Neo4j.URI)
	c.Neo4j.Username = getEnv("NEO4J_USER", c.Neo4j.Username)
	c.Neo4j.Password = getEnv("NEO4J_PASSWORD", c.Neo4j.Password)
	c.Neo4j.Database = getEnv("NEO4J_DATABASE", c.Neo4j.Database)

	if v := os.Getenv("GRAPHBULK_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRAPHBULK_WORKERS %q: %w", v, ErrInvalidConfig)
		}
		c.Import.Workers = n
	}
	return nil
}

// Validate checks that every setting is usable
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port %q: %w", c.Server.Port, ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q: %w", c.Log.Level, ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: %w", c.Log.Format, ErrInvalidConfig)
	}
	if c.Import.Workers <= 0 {
		return fmt.Errorf("import workers must be positive: %w", ErrInvalidConfig)
	}
	if _, err := session.ParsePolicy(c.Import.Policy); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}

	switch c.Sink.Type {
	case sink.TypeMemory:
	case sink.TypeFile, sink.TypeSQLite:
		if c.Sink.Path == "" {
			return fmt.Errorf("%s sink requires a path: %w", c.Sink.Type, ErrInvalidConfig)
		}
	case sink.TypeNeo4j:
		if c.Neo4j.URI == "" {
			return fmt.Errorf("neo4j sink requires a uri: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("sink type %q: %w", c.Sink.Type, ErrInvalidConfig)
	}
	return nil
}

// SinkOptions converts the sink settings for sink.Open
func (c Config) SinkOptions() sink.Options {
	return sink.Options{
		Type: c.Sink.Type,
		Path: c.Sink.Path,
		Neo4j: sink.Neo4jConfig{
			URI:            c.Neo4j.URI,
			Username:       c.Neo4j.Username,
			Password:       c.Neo4j.Password,
			Database:       c.Neo4j.Database,
			NodeLabel:      c.Neo4j.NodeLabel,
			EdgeType:       c.Neo4j.EdgeType,
			NodeProperties: c.Neo4j.NodeProperties,
			EdgeProperties: c.Neo4j.EdgeProperties,
			BatchSize:      c.Neo4j.BatchSize,
		},
	}
}

// SessionOptions converts the import settings for session.New
func (c Config) SessionOptions() []session.Option {
	policy, _ := session.ParsePolicy(c.Import.Policy)
	return []session.Option{
		session.WithWorkers(c.Import.Workers),
		session.WithOrdinalBase(c.Import.OrdinalBase),
		session.WithPolicy(policy),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
