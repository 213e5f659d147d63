package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	content := `
engine:
  temporal_window_seconds: 120
  weights:
    temporal: 0.5
    bandwidth: 0.25
    pattern: 0.25
  min_confidence_threshold: 0.4
  max_concurrency: 16
  fingerprint_alignment_rule: pad-zero
storage:
  postgres:
    host: db.internal
    database: unveil
nats:
  subject: custom.flows
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Engine.TemporalWindowSeconds != 120 {
		t.Errorf("Expected window 120, got %d", cfg.Engine.TemporalWindowSeconds)
	}
	if cfg.Engine.Weights.Temporal != 0.5 {
		t.Errorf("Expected temporal weight 0.5, got %v", cfg.Engine.Weights.Temporal)
	}
	if cfg.Engine.AlignmentRule != AlignPadZero {
		t.Errorf("Expected pad-zero alignment, got %q", cfg.Engine.AlignmentRule)
	}
	if cfg.Storage.Postgres.Host != "db.internal" || cfg.Storage.Postgres.Database != "unveil" {
		t.Errorf("Postgres overrides not applied: %+v", cfg.Storage.Postgres)
	}

	// Omitted fields keep their defaults.
	if cfg.Storage.Postgres.Port != 5432 {
		t.Errorf("Expected default postgres port, got %d", cfg.Storage.Postgres.Port)
	}
	if cfg.NATS.Subject != "custom.flows" {
		t.Errorf("Expected overridden NATS subject, got %q", cfg.NATS.Subject)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr, got %q", cfg.API.ListenAddr)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	sum := cfg.Engine.Weights.Temporal + cfg.Engine.Weights.Bandwidth + cfg.Engine.Weights.Pattern
	if sum != 1.0 {
		t.Errorf("Default weights must sum to 1.0, got %v", sum)
	}
	if cfg.Engine.TemporalWindowSeconds != 300 {
		t.Errorf("Expected default window 300s, got %d", cfg.Engine.TemporalWindowSeconds)
	}
	if cfg.Engine.AlignmentRule != AlignTruncate {
		t.Errorf("Expected default truncate alignment, got %q", cfg.Engine.AlignmentRule)
	}
}
