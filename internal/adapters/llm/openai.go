package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

const (
	openAIBaseURL = "https://api.openai.com"
	openAIKeyEnv  = "OPENAI_API_KEY"
)

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *logging.Logger
}

func NewOpenAI(cfg config.UpstreamConfig, logger *logging.Logger) (*OpenAI, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = openAIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("openai API key missing: set %s", keyEnv))
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   cfg.Model,
		client:  httpClient(cfg),
		logger:  logger.WithComponent("llm.openai"),
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Complete issues a single chat completion. Retry policy lives in the
// gateway chain, not here.
func (o *OpenAI) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	messages := make([]openAIMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.UserPrompt})

	body := openAIRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.ErrInternal("encode openai request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.ErrInternal("build openai request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, transportError("openai", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrUpstream(core.CodeUpstreamUnavailable, "read openai response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		o.logger.Warn("openai call failed", "status", resp.StatusCode, "model", model)
		return nil, statusError("openai", resp.StatusCode, raw)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, core.ErrUpstream(core.CodeUpstreamUnavailable, "decode openai response").WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return nil, core.ErrUpstream(core.CodeUpstreamUnavailable, "openai reply carried no choices")
	}
	return &core.CompletionResponse{
		Text:      parsed.Choices[0].Message.Content,
		Model:     parsed.Model,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
		Duration:  time.Since(start),
	}, nil
}
