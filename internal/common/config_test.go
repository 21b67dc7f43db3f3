package common

import (
	"os"
	"testing"
)

func TestNewDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Sandbox.TimeoutSeconds != 60 {
		t.Errorf("Sandbox.TimeoutSeconds = %d, want 60", cfg.Sandbox.TimeoutSeconds)
	}
	if cfg.Sandbox.MaxMemoryMB != 512 {
		t.Errorf("Sandbox.MaxMemoryMB = %d, want 512", cfg.Sandbox.MaxMemoryMB)
	}
	if cfg.Sandbox.MaxOutputRows != 1_000_000 {
		t.Errorf("Sandbox.MaxOutputRows = %d, want 1000000", cfg.Sandbox.MaxOutputRows)
	}
	if cfg.Worker.ChunkSize != 50_000 {
		t.Errorf("Worker.ChunkSize = %d, want 50000", cfg.Worker.ChunkSize)
	}
	if cfg.Worker.PollIntervalSec != 1.0 {
		t.Errorf("Worker.PollIntervalSec = %v, want 1.0", cfg.Worker.PollIntervalSec)
	}
	if cfg.Worker.MaxConcurrentJobs != 4 {
		t.Errorf("Worker.MaxConcurrentJobs = %d, want 4", cfg.Worker.MaxConcurrentJobs)
	}
}

func TestApplyEnvOverridesDatabaseAndSandbox(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SANDBOX_TIMEOUT_SECONDS", "30")
	t.Setenv("SANDBOX_MAX_MEMORY_MB", "256")
	t.Setenv("CHUNK_SIZE", "1000")
	t.Setenv("MAX_CONCURRENT_JOBS", "8")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.DSN != "postgres://env/db" {
		t.Errorf("Database.DSN = %q, want %q", cfg.Database.DSN, "postgres://env/db")
	}
	if cfg.Sandbox.TimeoutSeconds != 30 {
		t.Errorf("Sandbox.TimeoutSeconds = %d, want 30", cfg.Sandbox.TimeoutSeconds)
	}
	if cfg.Sandbox.MaxMemoryMB != 256 {
		t.Errorf("Sandbox.MaxMemoryMB = %d, want 256", cfg.Sandbox.MaxMemoryMB)
	}
	if cfg.Worker.ChunkSize != 1000 {
		t.Errorf("Worker.ChunkSize = %d, want 1000", cfg.Worker.ChunkSize)
	}
	if cfg.Worker.MaxConcurrentJobs != 8 {
		t.Errorf("Worker.MaxConcurrentJobs = %d, want 8", cfg.Worker.MaxConcurrentJobs)
	}
}

func TestApplyEnvOverridesQueueAndLogging(t *testing.T) {
	t.Setenv("QUEUE_STORE_ADDRESS", "ws://env:8000/rpc")
	t.Setenv("QUEUE_STORE_NAMESPACE", "env_ns")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRANSFORMD_ENV", "production")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Queue.Address != "ws://env:8000/rpc" {
		t.Errorf("Queue.Address = %q, want env override", cfg.Queue.Address)
	}
	if cfg.Queue.Namespace != "env_ns" {
		t.Errorf("Queue.Namespace = %q, want env override", cfg.Queue.Namespace)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true after TRANSFORMD_ENV=production")
	}
}

func TestLoadConfigMergesFileThenEnv(t *testing.T) {
	path := t.TempDir() + "/transformd.toml"
	contents := "[worker]\nchunk_size = 5000\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAX_CONCURRENT_JOBS", "16")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Worker.ChunkSize != 5000 {
		t.Errorf("Worker.ChunkSize = %d, want 5000 (from file)", cfg.Worker.ChunkSize)
	}
	if cfg.Worker.MaxConcurrentJobs != 16 {
		t.Errorf("Worker.MaxConcurrentJobs = %d, want 16 (from env)", cfg.Worker.MaxConcurrentJobs)
	}
}

func TestLoadConfigIgnoresMissingPath(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/transformd.toml")
	if err != nil {
		t.Fatalf("LoadConfig with missing path should not error: %v", err)
	}
	if cfg.Worker.ChunkSize != 50_000 {
		t.Errorf("expected default ChunkSize when config file is absent, got %d", cfg.Worker.ChunkSize)
	}
}
