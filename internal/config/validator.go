package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration. All violations are collected so a
// single startup failure reports everything at once.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateUpstream(&cfg.Upstream)
	v.validateGateway(&cfg.Gateway)
	v.validateCache(&cfg.Cache)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateScheduler(&cfg.Scheduler)
	v.validateAgents(&cfg.Agents)
	v.validateConsensus(&cfg.Consensus)
	v.validateConflicts(&cfg.Conflicts)
	v.validateRecommendations(&cfg.Recommendations)
	v.validateImpact(&cfg.Impact)
	v.validateScan(&cfg.Scan)
	v.validateServer(&cfg.Server)
	v.validateStore(&cfg.Store)
	v.validateReport(&cfg.Report)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateDuration(field, value string) {
	if _, err := time.ParseDuration(value); err != nil {
		v.addError(field, value, "invalid duration format")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateUpstream(cfg *UpstreamConfig) {
	validProviders := map[string]bool{
		"anthropic": true, "openai": true, "fake": true,
	}
	if !validProviders[cfg.Provider] {
		v.addError("upstream.provider", cfg.Provider, "must be one of: anthropic, openai, fake")
	}
	if cfg.Model == "" {
		v.addError("upstream.model", cfg.Model, "model required")
	}
	if cfg.MaxTokens <= 0 || cfg.MaxTokens > 200000 {
		v.addError("upstream.max_tokens", cfg.MaxTokens, "must be between 1 and 200000")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.addError("upstream.temperature", cfg.Temperature, "must be between 0 and 2")
	}
	v.validateDuration("upstream.timeout", cfg.Timeout)
}

func (v *Validator) validateGateway(cfg *GatewayConfig) {
	if cfg.Retry.MaxAttempts < 1 || cfg.Retry.MaxAttempts > 10 {
		v.addError("gateway.retry.max_attempts", cfg.Retry.MaxAttempts, "must be between 1 and 10")
	}
	v.validateDuration("gateway.retry.base_delay", cfg.Retry.BaseDelay)
	v.validateDuration("gateway.retry.max_delay", cfg.Retry.MaxDelay)
	if cfg.Retry.Multiplier < 1 {
		v.addError("gateway.retry.multiplier", cfg.Retry.Multiplier, "must be >= 1")
	}
	if cfg.Retry.JitterFactor < 0 || cfg.Retry.JitterFactor > 1 {
		v.addError("gateway.retry.jitter_factor", cfg.Retry.JitterFactor, "must be between 0 and 1")
	}

	if cfg.Breaker.FailureThreshold < 1 {
		v.addError("gateway.breaker.failure_threshold", cfg.Breaker.FailureThreshold, "must be positive")
	}
	if cfg.Breaker.SuccessThreshold < 1 {
		v.addError("gateway.breaker.success_threshold", cfg.Breaker.SuccessThreshold, "must be positive")
	}
	v.validateDuration("gateway.breaker.cooldown", cfg.Breaker.Cooldown)
}

func (v *Validator) validateCache(cfg *CacheConfig) {
	if !cfg.Enabled {
		return
	}
	v.validateDuration("cache.ttl", cfg.TTL)
	if cfg.MaxEntries < 1 {
		v.addError("cache.max_entries", cfg.MaxEntries, "must be positive")
	}
}

func (v *Validator) validateRateLimit(cfg *RateLimitConfig) {
	if cfg.MaxRequests < 1 {
		v.addError("ratelimit.max_requests", cfg.MaxRequests, "must be positive")
	}
	v.validateDuration("ratelimit.window", cfg.Window)
	if cfg.Mode != "block" && cfg.Mode != "reject" {
		v.addError("ratelimit.mode", cfg.Mode, "must be one of: block, reject")
	}
}

func (v *Validator) validateScheduler(cfg *SchedulerConfig) {
	if cfg.BatchSize < 1 || cfg.BatchSize > 100 {
		v.addError("scheduler.batch_size", cfg.BatchSize, "must be between 1 and 100")
	}
	if cfg.MaxTokensPerBatch < 1000 {
		v.addError("scheduler.max_tokens_per_batch", cfg.MaxTokensPerBatch, "must be at least 1000")
	}
	if cfg.BatchOverheadTokens < 0 {
		v.addError("scheduler.batch_overhead_tokens", cfg.BatchOverheadTokens, "must be non-negative")
	}
	if cfg.PerFileOverheadTokens < 0 {
		v.addError("scheduler.per_file_overhead_tokens", cfg.PerFileOverheadTokens, "must be non-negative")
	}
	if cfg.PreviewChars < 100 {
		v.addError("scheduler.preview_chars", cfg.PreviewChars, "must be at least 100")
	}
}

func (v *Validator) validateAgents(cfg *AgentsConfig) {
	if len(cfg.Enabled) == 0 {
		v.addError("agents.enabled", cfg.Enabled, "at least one agent required")
	}
	seen := map[string]bool{}
	for _, name := range cfg.Enabled {
		if name == "" {
			v.addError("agents.enabled", name, "agent name cannot be empty")
			continue
		}
		if seen[name] {
			v.addError("agents.enabled", name, "duplicate agent name")
		}
		seen[name] = true
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		v.addError("agents.confidence_threshold", cfg.ConfidenceThreshold, "must be between 0 and 1")
	}
}

func (v *Validator) validateConsensus(cfg *ConsensusConfig) {
	if cfg.HighThreshold <= 0 || cfg.HighThreshold > 1 {
		v.addError("consensus.high_threshold", cfg.HighThreshold, "must be between 0 and 1")
	}
	if cfg.ModerateThreshold <= 0 || cfg.ModerateThreshold > 1 {
		v.addError("consensus.moderate_threshold", cfg.ModerateThreshold, "must be between 0 and 1")
	}
	if cfg.ModerateThreshold >= cfg.HighThreshold {
		v.addError("consensus.moderate_threshold", cfg.ModerateThreshold, "must be below consensus.high_threshold")
	}
}

func (v *Validator) validateConflicts(cfg *ConflictConfig) {
	if len(cfg.Precedence) == 0 {
		v.addError("conflicts.precedence", cfg.Precedence, "precedence list required")
	}
	seen := map[string]bool{}
	for _, s := range cfg.Precedence {
		if seen[s] {
			v.addError("conflicts.precedence", s, "duplicate specialty")
		}
		seen[s] = true
	}
	if cfg.SeverityGap < 1 || cfg.SeverityGap > 3 {
		v.addError("conflicts.severity_gap", cfg.SeverityGap, "must be between 1 and 3")
	}
}

func (v *Validator) validateRecommendations(cfg *RecommendationConfig) {
	if cfg.MaxRecommendations < 1 {
		v.addError("recommendations.max", cfg.MaxRecommendations, "must be positive")
	}
	if cfg.HighScoreThreshold < 0 {
		v.addError("recommendations.high_score_threshold", cfg.HighScoreThreshold, "must be non-negative")
	}
	for sev, w := range cfg.SeverityWeights {
		switch sev {
		case "critical", "high", "medium", "low":
		default:
			v.addError("recommendations.severity_weights", sev, "unknown severity")
		}
		if w < 0 {
			v.addError("recommendations.severity_weights."+sev, w, "must be non-negative")
		}
	}
}

func (v *Validator) validateImpact(cfg *ImpactConfig) {
	if cfg.HourlyRateUSD < 0 {
		v.addError("impact.hourly_rate_usd", cfg.HourlyRateUSD, "must be non-negative")
	}
	if cfg.DiscountPercent < 0 || cfg.DiscountPercent > 100 {
		v.addError("impact.discount_percent", cfg.DiscountPercent, "must be between 0 and 100")
	}
	for sev, usd := range cfg.AnnualRiskUSD {
		switch sev {
		case "critical", "high", "medium", "low":
		default:
			v.addError("impact.annual_risk_usd", sev, "unknown severity")
		}
		if usd < 0 {
			v.addError("impact.annual_risk_usd."+sev, usd, "must be non-negative")
		}
	}
}

func (v *Validator) validateScan(cfg *ScanConfig) {
	if cfg.MaxFileSizeBytes < 1 {
		v.addError("scan.max_file_size_bytes", cfg.MaxFileSizeBytes, "must be positive")
	}
	if cfg.MaxFiles < 1 {
		v.addError("scan.max_files", cfg.MaxFiles, "must be positive")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.MaxUploadBytes < 1 {
		v.addError("server.max_upload_bytes", cfg.MaxUploadBytes, "must be positive")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Path == "" {
		v.addError("store.path", cfg.Path, "path required")
	}
	if cfg.MaxRuns < 1 {
		v.addError("store.max_runs", cfg.MaxRuns, "must be positive")
	}
}

func (v *Validator) validateReport(cfg *ReportConfig) {
	validFormats := map[string]bool{
		"terminal": true, "markdown": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("report.format", cfg.Format, "must be one of: terminal, markdown, json")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
