package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Embedding EmbeddingConfig `json:"embedding"`
	Memory    MemoryConfig    `json:"memory"`
	Database  DatabaseConfig  `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// EmbeddingConfig selects and configures the embedding collaborator.
type EmbeddingConfig struct {
	Provider     string `json:"provider"` // "api" or "local"
	Endpoint     string `json:"endpoint"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	Dimension    int    `json:"dimension"`
	CacheTTLMins int    `json:"cache_ttl_minutes"`
}

// MemoryConfig tunes the maintenance loop of the memory service.
type MemoryConfig struct {
	ForgetThreshold     float64 `json:"forget_threshold"`
	ForgetIntervalMins  int     `json:"forget_interval_minutes"`
	ConsolidateInterval int     `json:"consolidate_interval_minutes"`
	SnapshotInterval    int     `json:"snapshot_interval_minutes"`
}

// ForgetEvery returns the forgetting sweep interval, defaulting to an hour.
func (m MemoryConfig) ForgetEvery() time.Duration {
	if m.ForgetIntervalMins <= 0 {
		return time.Hour
	}
	return time.Duration(m.ForgetIntervalMins) * time.Minute
}

// ConsolidateEvery returns the consolidation interval, defaulting to six hours.
func (m MemoryConfig) ConsolidateEvery() time.Duration {
	if m.ConsolidateInterval <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(m.ConsolidateInterval) * time.Minute
}

// SnapshotEvery returns the snapshot interval, defaulting to 15 minutes.
func (m MemoryConfig) SnapshotEvery() time.Duration {
	if m.SnapshotInterval <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(m.SnapshotInterval) * time.Minute
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
