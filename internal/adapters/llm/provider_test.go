package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

func upstreamConfig(provider, baseURL string) config.UpstreamConfig {
	return config.UpstreamConfig{
		Provider:  provider,
		Model:     "test-model",
		BaseURL:   baseURL,
		APIKeyEnv: "CODECOUNCIL_TEST_KEY",
		MaxTokens: 256,
		Timeout:   "5s",
	}
}

func TestNewSelectsProvider(t *testing.T) {
	t.Setenv("CODECOUNCIL_TEST_KEY", "sk-test")

	client, err := New(upstreamConfig("fake", ""), logging.NewNop())
	if err != nil {
		t.Fatalf("New(fake) error: %v", err)
	}
	if client.Name() != "fake" {
		t.Errorf("Name() = %q, want %q", client.Name(), "fake")
	}

	client, err = New(upstreamConfig("anthropic", ""), logging.NewNop())
	if err != nil {
		t.Fatalf("New(anthropic) error: %v", err)
	}
	if client.Name() != "anthropic" {
		t.Errorf("Name() = %q, want %q", client.Name(), "anthropic")
	}

	if _, err := New(upstreamConfig("mystery", ""), logging.NewNop()); err == nil {
		t.Error("New(mystery) error = nil, want validation error")
	} else if !core.IsCategory(err, core.ErrCatValidation) {
		t.Errorf("New(mystery) category = %v, want validation", core.GetCategory(err))
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("CODECOUNCIL_TEST_KEY", "")

	if _, err := New(upstreamConfig("anthropic", ""), logging.NewNop()); err == nil {
		t.Error("missing key accepted for anthropic")
	}
	if _, err := New(upstreamConfig("openai", ""), logging.NewNop()); err == nil {
		t.Error("missing key accepted for openai")
	}
}

func TestAnthropicCompleteParsesReply(t *testing.T) {
	t.Setenv("CODECOUNCIL_TEST_KEY", "sk-test")

	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "test-model",
			"content": [{"type": "text", "text": "first "}, {"type": "text", "text": "second"}],
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	client, err := NewAnthropic(upstreamConfig("anthropic", srv.URL), logging.NewNop())
	if err != nil {
		t.Fatalf("NewAnthropic error: %v", err)
	}
	resp, err := client.Complete(context.Background(), core.CompletionRequest{
		SystemPrompt: "be brief",
		UserPrompt:   "review this",
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != "first second" {
		t.Errorf("Text = %q, want joined blocks", resp.Text)
	}
	if resp.TokensIn != 12 || resp.TokensOut != 7 {
		t.Errorf("tokens = %d/%d, want 12/7", resp.TokensIn, resp.TokensOut)
	}
	if gotKey != "sk-test" {
		t.Errorf("x-api-key = %q, want sk-test", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q, want %q", gotVersion, anthropicAPIVersion)
	}
}

func TestAnthropicStatusMapping(t *testing.T) {
	t.Setenv("CODECOUNCIL_TEST_KEY", "sk-test")

	tests := []struct {
		status    int
		category  core.ErrorCategory
		retryable bool
	}{
		{http.StatusTooManyRequests, core.ErrCatUpstream, true},
		{http.StatusInternalServerError, core.ErrCatUpstream, true},
		{http.StatusServiceUnavailable, core.ErrCatUpstream, true},
		{http.StatusUnauthorized, core.ErrCatUpstream, false},
		{http.StatusForbidden, core.ErrCatUpstream, false},
		{http.StatusBadRequest, core.ErrCatUpstream, false},
	}
	for _, tc := range tests {
		status := tc.status
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream unhappy", status)
		}))
		client, err := NewAnthropic(upstreamConfig("anthropic", srv.URL), logging.NewNop())
		if err != nil {
			srv.Close()
			t.Fatalf("NewAnthropic error: %v", err)
		}
		_, err = client.Complete(context.Background(), core.CompletionRequest{UserPrompt: "x"})
		srv.Close()
		if err == nil {
			t.Errorf("status %d: error = nil", status)
			continue
		}
		if !core.IsCategory(err, tc.category) {
			t.Errorf("status %d: category = %v, want %v", status, core.GetCategory(err), tc.category)
		}
		if core.IsRetryable(err) != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", status, core.IsRetryable(err), tc.retryable)
		}
	}
}

func TestOpenAICompleteParsesReply(t *testing.T) {
	t.Setenv("CODECOUNCIL_TEST_KEY", "sk-test")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "test-model",
			"choices": [{"message": {"role": "assistant", "content": "looks fine"}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	client, err := NewOpenAI(upstreamConfig("openai", srv.URL), logging.NewNop())
	if err != nil {
		t.Fatalf("NewOpenAI error: %v", err)
	}
	resp, err := client.Complete(context.Background(), core.CompletionRequest{
		SystemPrompt: "be brief",
		UserPrompt:   "review this",
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != "looks fine" {
		t.Errorf("Text = %q, want %q", resp.Text, "looks fine")
	}
	if resp.TokensIn != 20 || resp.TokensOut != 4 {
		t.Errorf("tokens = %d/%d, want 20/4", resp.TokensIn, resp.TokensOut)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	t.Setenv("CODECOUNCIL_TEST_KEY", "sk-test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model": "test-model", "choices": []}`))
	}))
	defer srv.Close()

	client, err := NewOpenAI(upstreamConfig("openai", srv.URL), logging.NewNop())
	if err != nil {
		t.Fatalf("NewOpenAI error: %v", err)
	}
	if _, err := client.Complete(context.Background(), core.CompletionRequest{UserPrompt: "x"}); err == nil {
		t.Error("empty choices accepted")
	}
}

func TestFakeAnswersRenderedFilesWithSections(t *testing.T) {
	prompt := "Review the following files.\n\n" +
		"## src/auth/login.cs (csharp, complexity 4.0)\n\n```csharp\nclass Login {}\n```\n\n" +
		"## src/auth/token.cs (csharp, complexity 2.5)\n\n```csharp\nclass Token {}\n```\n"

	resp, err := NewFake().Complete(context.Background(), core.CompletionRequest{UserPrompt: prompt})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	for _, want := range []string{"### src/auth/login.cs", "### src/auth/token.cs", "### overall", `"confidence"`} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("reply missing %q", want)
		}
	}
	// Identical prompts produce identical replies.
	again, err := NewFake().Complete(context.Background(), core.CompletionRequest{UserPrompt: prompt})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if again.Text != resp.Text {
		t.Error("fake reply is not deterministic")
	}
}

func TestFakeAnswersProseWithoutHeaders(t *testing.T) {
	resp, err := NewFake().Complete(context.Background(), core.CompletionRequest{
		UserPrompt: "Please critique the peer assessment above.",
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if strings.Contains(resp.Text, "###") {
		t.Errorf("prose reply carries section headers: %q", resp.Text)
	}
	if resp.Text == "" {
		t.Error("prose reply is empty")
	}
}
