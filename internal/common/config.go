// Package common provides shared utilities for transformd: logging and
// configuration.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for transformd.
type Config struct {
	Environment string         `toml:"environment"`
	Queue       QueueConfig    `toml:"queue"`
	Database    DatabaseConfig `toml:"database"`
	Sandbox     SandboxConfig  `toml:"sandbox"`
	Worker      WorkerConfig   `toml:"worker"`
	Logging     LoggingConfig  `toml:"logging"`
}

// QueueConfig holds the SurrealDB connection used by the queue and scripts
// stores.
type QueueConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// DatabaseConfig holds the PostgreSQL endpoint DataStore reads and writes
// against. DSN corresponds to the spec's DATABASE_URL; SyncDSN corresponds
// to SYNC_DATABASE_URL for tooling that needs a non-pooled connection
// (migrations, one-off scripts) — transformd itself only uses DSN.
type DatabaseConfig struct {
	DSN     string `toml:"dsn"`
	SyncDSN string `toml:"sync_dsn"`
}

// SandboxConfig holds the resource limits enforced by the Sandbox: time and
// memory by its L5 monitor, MaxOutputRows by a row-count check on the
// returned table. DataStore.WriteTable does not check MaxOutputRows.
type SandboxConfig struct {
	TimeoutSeconds int   `toml:"timeout_seconds"`
	MaxMemoryMB    int   `toml:"max_memory_mb"`
	MaxOutputRows  int64 `toml:"max_output_rows"`
}

// WorkerConfig holds the chunking threshold and the supervisor's polling
// and concurrency parameters.
type WorkerConfig struct {
	ChunkSize         int     `toml:"chunk_size"`
	PollIntervalSec   float64 `toml:"poll_interval_seconds"`
	MaxConcurrentJobs int     `toml:"max_concurrent_jobs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with the defaults named in the
// configuration surface: SANDBOX_TIMEOUT_SECONDS=60,
// SANDBOX_MAX_MEMORY_MB=512, SANDBOX_MAX_OUTPUT_ROWS=1_000_000,
// CHUNK_SIZE=50_000, WORKER_POLL_INTERVAL=1.0s, MAX_CONCURRENT_JOBS=4.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "transformd",
			Database:  "transformd",
		},
		Database: DatabaseConfig{
			DSN: "postgres://localhost:5432/transformd?sslmode=disable",
		},
		Sandbox: SandboxConfig{
			TimeoutSeconds: 60,
			MaxMemoryMB:    512,
			MaxOutputRows:  1_000_000,
		},
		Worker: WorkerConfig{
			ChunkSize:         50_000,
			PollIntervalSec:   1.0,
			MaxConcurrentJobs: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/transformd.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides,
// merging each path in order (later files win) before env vars are applied.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies the configuration surface's named environment
// variables over whatever was loaded from file.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TRANSFORMD_ENV"); env != "" {
		config.Environment = env
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv("SYNC_DATABASE_URL"); v != "" {
		config.Database.SyncDSN = v
	}
	if v := os.Getenv("QUEUE_STORE_ADDRESS"); v != "" {
		config.Queue.Address = v
	}
	if v := os.Getenv("QUEUE_STORE_NAMESPACE"); v != "" {
		config.Queue.Namespace = v
	}
	if v := os.Getenv("QUEUE_STORE_DATABASE"); v != "" {
		config.Queue.Database = v
	}
	if v := os.Getenv("SANDBOX_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Sandbox.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_MAX_MEMORY_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Sandbox.MaxMemoryMB = n
		}
	}
	if v := os.Getenv("SANDBOX_MAX_OUTPUT_ROWS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Sandbox.MaxOutputRows = n
		}
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.ChunkSize = n
		}
	}
	if v := os.Getenv("WORKER_POLL_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Worker.PollIntervalSec = f
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.MaxConcurrentJobs = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		config.Logging.FilePath = v + "/transformd.log"
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
