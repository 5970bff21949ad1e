package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Defaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}

	if cfg.Upstream.Provider != "anthropic" {
		t.Errorf("Upstream.Provider = %q, want %q", cfg.Upstream.Provider, "anthropic")
	}
	if cfg.Upstream.Timeout != "120s" {
		t.Errorf("Upstream.Timeout = %q, want %q", cfg.Upstream.Timeout, "120s")
	}

	if cfg.Gateway.Retry.MaxAttempts != 3 {
		t.Errorf("Gateway.Retry.MaxAttempts = %d, want 3", cfg.Gateway.Retry.MaxAttempts)
	}
	if cfg.Gateway.Breaker.FailureThreshold != 5 {
		t.Errorf("Gateway.Breaker.FailureThreshold = %d, want 5", cfg.Gateway.Breaker.FailureThreshold)
	}

	if cfg.Scheduler.BatchSize != 10 {
		t.Errorf("Scheduler.BatchSize = %d, want 10", cfg.Scheduler.BatchSize)
	}
	if cfg.Scheduler.MaxTokensPerBatch != 12000 {
		t.Errorf("Scheduler.MaxTokensPerBatch = %d, want 12000", cfg.Scheduler.MaxTokensPerBatch)
	}

	if len(cfg.Agents.Enabled) != 3 {
		t.Errorf("Agents.Enabled = %v, want 3 built-in specialists", cfg.Agents.Enabled)
	}

	if !cfg.Review.PeerReviewEnabled {
		t.Error("Review.PeerReviewEnabled = false, want true")
	}
	if cfg.Review.SynthesisEnabled {
		t.Error("Review.SynthesisEnabled = true, want false (latency default)")
	}

	if cfg.Consensus.HighThreshold != 0.80 {
		t.Errorf("Consensus.HighThreshold = %f, want 0.80", cfg.Consensus.HighThreshold)
	}
	if cfg.Recommendations.MaxRecommendations != 10 {
		t.Errorf("Recommendations.Max = %d, want 10", cfg.Recommendations.MaxRecommendations)
	}
	if w := cfg.Recommendations.SeverityWeights["critical"]; w != 10.0 {
		t.Errorf("SeverityWeights[critical] = %f, want 10.0", w)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	os.Setenv("CODECOUNCIL_LOG_LEVEL", "debug")
	os.Setenv("CODECOUNCIL_SCHEDULER_BATCH_SIZE", "5")
	os.Setenv("CODECOUNCIL_CONSENSUS_HIGH_THRESHOLD", "0.9")
	defer func() {
		os.Unsetenv("CODECOUNCIL_LOG_LEVEL")
		os.Unsetenv("CODECOUNCIL_SCHEDULER_BATCH_SIZE")
		os.Unsetenv("CODECOUNCIL_CONSENSUS_HIGH_THRESHOLD")
	}()

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Scheduler.BatchSize != 5 {
		t.Errorf("Scheduler.BatchSize = %d, want 5", cfg.Scheduler.BatchSize)
	}
	if cfg.Consensus.HighThreshold != 0.9 {
		t.Errorf("Consensus.HighThreshold = %f, want 0.9", cfg.Consensus.HighThreshold)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "council.yaml")
	content := `
log:
  level: warn
upstream:
  provider: openai
  model: gpt-4o
scheduler:
  batch_size: 4
agents:
  enabled: [security, performance]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Upstream.Provider != "openai" {
		t.Errorf("Upstream.Provider = %q, want %q", cfg.Upstream.Provider, "openai")
	}
	if cfg.Scheduler.BatchSize != 4 {
		t.Errorf("Scheduler.BatchSize = %d, want 4", cfg.Scheduler.BatchSize)
	}
	if len(cfg.Agents.Enabled) != 2 {
		t.Errorf("Agents.Enabled = %v, want 2 entries", cfg.Agents.Enabled)
	}
	// Untouched keys keep defaults.
	if cfg.Cache.MaxEntries != 1000 {
		t.Errorf("Cache.MaxEntries = %d, want default 1000", cfg.Cache.MaxEntries)
	}
}

func TestLoader_MissingConfigFileIsError(t *testing.T) {
	loader := NewLoader().WithConfigFile("/nonexistent/path/config.yaml")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestDefault_PassesValidation(t *testing.T) {
	cfg := Default()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}
