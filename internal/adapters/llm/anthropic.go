package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	anthropicKeyEnv     = "ANTHROPIC_API_KEY"
)

// Anthropic talks to the Anthropic messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *logging.Logger
}

// NewAnthropic reads the API key from the environment variable named in the
// configuration (ANTHROPIC_API_KEY when unset) and fails fast when missing.
func NewAnthropic(cfg config.UpstreamConfig, logger *logging.Logger) (*Anthropic, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = anthropicKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("anthropic API key missing: set %s", keyEnv))
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &Anthropic{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   cfg.Model,
		client:  httpClient(cfg),
		logger:  logger.WithComponent("llm.anthropic"),
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string           `json:"model"`
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete issues a single messages call. It never retries on its own: the
// gateway chain around the adapter decides whether an error is worth another
// attempt.
func (a *Anthropic) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	body := anthropicRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.ErrInternal("encode anthropic request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, core.ErrInternal("build anthropic request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, transportError("anthropic", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrUpstream(core.CodeUpstreamUnavailable, "read anthropic response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("anthropic call failed", "status", resp.StatusCode, "model", model)
		return nil, statusError("anthropic", resp.StatusCode, raw)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, core.ErrUpstream(core.CodeUpstreamUnavailable, "decode anthropic response").WithCause(err)
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &core.CompletionResponse{
		Text:      text.String(),
		Model:     parsed.Model,
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
		Duration:  time.Since(start),
	}, nil
}

// transportError classifies a client.Do failure. Context cancellation
// propagates raw so callers can tell shutdown from upstream trouble.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.ErrTimeout(provider + " call timed out").WithCause(err)
	}
	return core.ErrUpstream(core.CodeUpstreamUnavailable, provider+" unreachable").WithCause(err)
}
