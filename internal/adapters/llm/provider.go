package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

const defaultCallTimeout = 120 * time.Second

// New builds the provider adapter named by the configuration. The adapter is
// a bare transport: retry, caching and circuit state belong to the gateway
// chain wrapped around it.
func New(cfg config.UpstreamConfig, logger *logging.Logger) (core.CompletionClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return NewAnthropic(cfg, logger)
	case "openai":
		return NewOpenAI(cfg, logger)
	case "fake":
		return NewFake(), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown upstream provider %q", cfg.Provider))
	}
}

// Endpoint resolves the base URL the configured provider will call.
// Empty for the fake provider, which never leaves the process.
func Endpoint(cfg config.UpstreamConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return anthropicBaseURL
	case "openai":
		return openAIBaseURL
	default:
		return ""
	}
}

// KeyEnv resolves the environment variable holding the provider API key.
func KeyEnv(cfg config.UpstreamConfig) string {
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return anthropicKeyEnv
	case "openai":
		return openAIKeyEnv
	default:
		return ""
	}
}

// httpClient builds the transport with the configured per-call timeout.
func httpClient(cfg config.UpstreamConfig) *http.Client {
	timeout := defaultCallTimeout
	if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
		timeout = d
	}
	return &http.Client{Timeout: timeout}
}

// statusError maps an upstream HTTP status onto the domain error taxonomy:
// 429 and 5xx are retryable, auth and bad-request failures are not.
func statusError(provider string, status int, body []byte) error {
	msg := fmt.Sprintf("%s replied %d: %s", provider, status, clipBody(body))
	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrUpstream(core.CodeUpstreamThrottled, msg)
	case status >= 500:
		return core.ErrUpstream(core.CodeUpstreamUnavailable, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrUpstreamFatal(core.CodeUpstreamAuth, msg)
	default:
		return core.ErrUpstreamFatal(core.CodeUpstreamBadRequest, msg)
	}
}

func clipBody(body []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
