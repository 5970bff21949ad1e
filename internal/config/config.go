package config

// Config holds all application configuration.
type Config struct {
	Log             LogConfig            `mapstructure:"log"`
	Upstream        UpstreamConfig       `mapstructure:"upstream"`
	Gateway         GatewayConfig        `mapstructure:"gateway"`
	Cache           CacheConfig          `mapstructure:"cache"`
	RateLimit       RateLimitConfig      `mapstructure:"ratelimit"`
	Scheduler       SchedulerConfig      `mapstructure:"scheduler"`
	Agents          AgentsConfig         `mapstructure:"agents"`
	Review          ReviewConfig         `mapstructure:"review"`
	Consensus       ConsensusConfig      `mapstructure:"consensus"`
	Conflicts       ConflictConfig       `mapstructure:"conflicts"`
	Recommendations RecommendationConfig `mapstructure:"recommendations"`
	Impact          ImpactConfig         `mapstructure:"impact"`
	Scan            ScanConfig           `mapstructure:"scan"`
	Server          ServerConfig         `mapstructure:"server"`
	Store           StoreConfig          `mapstructure:"store"`
	Report          ReportConfig         `mapstructure:"report"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UpstreamConfig configures the LLM completion endpoint.
type UpstreamConfig struct {
	Provider    string  `mapstructure:"provider"` // anthropic, openai, fake
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Timeout     string  `mapstructure:"timeout"`
}

// GatewayConfig configures call resilience around the upstream endpoint.
type GatewayConfig struct {
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// RetryConfig configures exponential backoff for transient upstream failures.
type RetryConfig struct {
	MaxAttempts  int     `mapstructure:"max_attempts"`
	BaseDelay    string  `mapstructure:"base_delay"`
	MaxDelay     string  `mapstructure:"max_delay"`
	Multiplier   float64 `mapstructure:"multiplier"`
	JitterFactor float64 `mapstructure:"jitter_factor"`
}

// BreakerConfig configures the per-dependency circuit breaker.
type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	SuccessThreshold int    `mapstructure:"success_threshold"`
	Cooldown         string `mapstructure:"cooldown"`
}

// CacheConfig configures the fingerprint response cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	TTL        string `mapstructure:"ttl"`
	Sliding    bool   `mapstructure:"sliding"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// RateLimitConfig configures the per-agent sliding window rate limiter.
type RateLimitConfig struct {
	MaxRequests int    `mapstructure:"max_requests"`
	Window      string `mapstructure:"window"`
	Mode        string `mapstructure:"mode"` // block, reject
}

// SchedulerConfig configures batch construction.
type SchedulerConfig struct {
	BatchSize             int `mapstructure:"batch_size"`
	MaxTokensPerBatch     int `mapstructure:"max_tokens_per_batch"`
	BatchOverheadTokens   int `mapstructure:"batch_overhead_tokens"`
	PerFileOverheadTokens int `mapstructure:"per_file_overhead_tokens"`
	PreviewChars          int `mapstructure:"preview_chars"`
}

// AgentsConfig configures the specialist roster.
type AgentsConfig struct {
	Enabled             []string `mapstructure:"enabled"`
	RosterFile          string   `mapstructure:"roster_file"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
}

// ReviewConfig configures the discussion round.
type ReviewConfig struct {
	PeerReviewEnabled bool `mapstructure:"peer_review_enabled"`
	SynthesisEnabled  bool `mapstructure:"synthesis_enabled"`
}

// ConsensusConfig configures agreement tier thresholds.
type ConsensusConfig struct {
	HighThreshold     float64 `mapstructure:"high_threshold"`
	ModerateThreshold float64 `mapstructure:"moderate_threshold"`
}

// ConflictConfig configures conflict resolution.
type ConflictConfig struct {
	Precedence  []string `mapstructure:"precedence"`
	SeverityGap int      `mapstructure:"severity_gap"`
}

// RecommendationConfig configures synthesis output.
type RecommendationConfig struct {
	MaxRecommendations int                `mapstructure:"max"`
	HighScoreThreshold float64            `mapstructure:"high_score_threshold"`
	SeverityWeights    map[string]float64 `mapstructure:"severity_weights"`
}

// ImpactConfig configures business impact estimation.
type ImpactConfig struct {
	HourlyRateUSD   float64            `mapstructure:"hourly_rate_usd"`
	AnnualRiskUSD   map[string]float64 `mapstructure:"annual_risk_usd"`
	DiscountPercent float64            `mapstructure:"discount_percent"`
}

// ScanConfig configures file discovery.
type ScanConfig struct {
	MaxFileSizeBytes int64    `mapstructure:"max_file_size_bytes"`
	MaxFiles         int      `mapstructure:"max_files"`
	ExcludeDirs      []string `mapstructure:"exclude_dirs"`
	IncludeExts      []string `mapstructure:"include_exts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

// StoreConfig configures run-history persistence.
type StoreConfig struct {
	Path    string `mapstructure:"path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// ReportConfig configures result rendering.
type ReportConfig struct {
	Format    string `mapstructure:"format"` // terminal, markdown, json
	OutputDir string `mapstructure:"output_dir"`
}
