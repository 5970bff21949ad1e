package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "CODECOUNCIL",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "CODECOUNCIL",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CODECOUNCIL_*)
// 3. Project config (.codecouncil.yaml in current directory)
// 4. User config (~/.config/codecouncil/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".codecouncil")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config.
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "codecouncil"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Upstream defaults
	l.v.SetDefault("upstream.provider", "anthropic")
	l.v.SetDefault("upstream.model", "claude-sonnet-4-20250514")
	l.v.SetDefault("upstream.base_url", "")
	l.v.SetDefault("upstream.api_key_env", "ANTHROPIC_API_KEY")
	l.v.SetDefault("upstream.max_tokens", 4096)
	l.v.SetDefault("upstream.temperature", 0.3)
	l.v.SetDefault("upstream.timeout", "120s")

	// Gateway defaults
	l.v.SetDefault("gateway.retry.max_attempts", 3)
	l.v.SetDefault("gateway.retry.base_delay", "1s")
	l.v.SetDefault("gateway.retry.max_delay", "30s")
	l.v.SetDefault("gateway.retry.multiplier", 2.0)
	l.v.SetDefault("gateway.retry.jitter_factor", 0.1)
	l.v.SetDefault("gateway.breaker.failure_threshold", 5)
	l.v.SetDefault("gateway.breaker.success_threshold", 2)
	l.v.SetDefault("gateway.breaker.cooldown", "60s")

	// Cache defaults
	l.v.SetDefault("cache.enabled", true)
	l.v.SetDefault("cache.ttl", "1h")
	l.v.SetDefault("cache.sliding", false)
	l.v.SetDefault("cache.max_entries", 1000)

	// Rate limit defaults
	l.v.SetDefault("ratelimit.max_requests", 30)
	l.v.SetDefault("ratelimit.window", "1m")
	l.v.SetDefault("ratelimit.mode", "block")

	// Scheduler defaults
	l.v.SetDefault("scheduler.batch_size", 10)
	l.v.SetDefault("scheduler.max_tokens_per_batch", 12000)
	l.v.SetDefault("scheduler.batch_overhead_tokens", 500)
	l.v.SetDefault("scheduler.per_file_overhead_tokens", 100)
	l.v.SetDefault("scheduler.preview_chars", 2000)

	// Agent defaults
	l.v.SetDefault("agents.enabled", []string{"security", "performance", "architecture"})
	l.v.SetDefault("agents.roster_file", "")
	l.v.SetDefault("agents.confidence_threshold", 0.7)

	// Review defaults
	l.v.SetDefault("review.peer_review_enabled", true)
	l.v.SetDefault("review.synthesis_enabled", false)

	// Consensus defaults
	l.v.SetDefault("consensus.high_threshold", 0.80)
	l.v.SetDefault("consensus.moderate_threshold", 0.50)

	// Conflict defaults
	l.v.SetDefault("conflicts.precedence", []string{"security", "performance", "architecture"})
	l.v.SetDefault("conflicts.severity_gap", 2)

	// Recommendation defaults
	l.v.SetDefault("recommendations.max", 10)
	l.v.SetDefault("recommendations.high_score_threshold", 3.0)
	l.v.SetDefault("recommendations.severity_weights", map[string]float64{
		"critical": 10.0,
		"high":     5.0,
		"medium":   2.0,
		"low":      1.0,
	})

	// Impact defaults
	l.v.SetDefault("impact.hourly_rate_usd", 150.0)
	l.v.SetDefault("impact.annual_risk_usd", map[string]float64{
		"critical": 50000.0,
		"high":     20000.0,
		"medium":   5000.0,
		"low":      1000.0,
	})
	l.v.SetDefault("impact.discount_percent", 0.0)

	// Scan defaults
	l.v.SetDefault("scan.max_file_size_bytes", 1048576)
	l.v.SetDefault("scan.max_files", 500)
	l.v.SetDefault("scan.exclude_dirs", []string{".git", "node_modules", "vendor", "dist", "build", ".codecouncil"})
	l.v.SetDefault("scan.include_exts", []string{})

	// Server defaults
	l.v.SetDefault("server.host", "127.0.0.1")
	l.v.SetDefault("server.port", 8745)
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	l.v.SetDefault("server.max_upload_bytes", 10485760)

	// Store defaults
	l.v.SetDefault("store.path", ".codecouncil/history.db")
	l.v.SetDefault("store.max_runs", 100)

	// Report defaults
	l.v.SetDefault("report.format", "terminal")
	l.v.SetDefault("report.output_dir", ".codecouncil/reports")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Default returns the fully defaulted configuration without reading any
// file or environment source.
func Default() *Config {
	l := NewLoader()
	l.setDefaults()
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	return &cfg
}
