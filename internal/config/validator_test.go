package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return Default()
}

func TestValidator_ValidConfig(t *testing.T) {
	err := ValidateConfig(validConfig())
	require.NoError(t, err)
}

func TestValidator_LogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidator_UpstreamProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.Provider = "carrier-pigeon"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream.provider")
}

func TestValidator_UpstreamBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.MaxTokens = 0
	cfg.Upstream.Temperature = 3.0
	cfg.Upstream.Timeout = "soon"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream.max_tokens")
	assert.Contains(t, err.Error(), "upstream.temperature")
	assert.Contains(t, err.Error(), "upstream.timeout")
}

func TestValidator_GatewayBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Retry.MaxAttempts = 0
	cfg.Gateway.Retry.Multiplier = 0.5
	cfg.Gateway.Breaker.FailureThreshold = 0
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.retry.max_attempts")
	assert.Contains(t, err.Error(), "gateway.retry.multiplier")
	assert.Contains(t, err.Error(), "gateway.breaker.failure_threshold")
}

func TestValidator_DisabledCacheSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Enabled = false
	cfg.Cache.TTL = "bogus"
	cfg.Cache.MaxEntries = 0
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidator_RateLimitMode(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Mode = "drop"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit.mode")
}

func TestValidator_SchedulerBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.BatchSize = 0
	cfg.Scheduler.MaxTokensPerBatch = 10
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.batch_size")
	assert.Contains(t, err.Error(), "scheduler.max_tokens_per_batch")
}

func TestValidator_AgentsRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Agents.Enabled = nil
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one agent required")
}

func TestValidator_AgentsDuplicate(t *testing.T) {
	cfg := validConfig()
	cfg.Agents.Enabled = []string{"security", "security"}
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent name")
}

func TestValidator_ConsensusOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Consensus.HighThreshold = 0.5
	cfg.Consensus.ModerateThreshold = 0.8
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be below consensus.high_threshold")
}

func TestValidator_ConflictPrecedence(t *testing.T) {
	cfg := validConfig()
	cfg.Conflicts.Precedence = []string{"security", "security"}
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate specialty")
}

func TestValidator_RecommendationWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Recommendations.SeverityWeights = map[string]float64{"catastrophic": 99}
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown severity")
}

func TestValidator_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "bad"
	cfg.Log.Format = "bad"
	cfg.Scheduler.BatchSize = -1
	err := ValidateConfig(cfg)
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok, "error should be ValidationErrors")
	assert.GreaterOrEqual(t, len(verrs), 3)
	assert.True(t, verrs.HasErrors())
	// All messages joined into one startup error.
	assert.GreaterOrEqual(t, strings.Count(err.Error(), ";"), 2)
}

func TestValidator_ReportFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Report.Format = "pdf"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.format")
}
