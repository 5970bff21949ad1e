package core

import (
	"context"
	"time"
)

// CompletionRequest is one call to the LLM completion endpoint.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64

	// Fingerprint is the caller-computed cache identity of this request.
	// When empty, caching layers derive one from the prompts and model.
	Fingerprint string
}

// CompletionResponse is the upstream reply to a CompletionRequest.
type CompletionResponse struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
	Duration  time.Duration
	Cached    bool
}

// CompletionClient is the port to the LLM completion endpoint. Adapters map
// transport failures onto the DomainError taxonomy: 429/5xx/timeouts are
// retryable, 400/401/403 are not.
type CompletionClient interface {
	// Name identifies the upstream dependency for circuit and metric scoping.
	Name() string

	// Complete performs one completion call. Blocks until the upstream
	// responds, the configured timeout fires, or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Middleware decorates a CompletionClient with cross-cutting behavior
// (retry, circuit breaking, caching, rate limiting, redaction).
type Middleware func(CompletionClient) CompletionClient

// Chain wraps client with the given middlewares. The first middleware
// becomes the outermost layer.
func Chain(client CompletionClient, mws ...Middleware) CompletionClient {
	for i := len(mws) - 1; i >= 0; i-- {
		client = mws[i](client)
	}
	return client
}

// SpecialistAgent is the uniform contract every review persona implements.
// New specialties register against the orchestrator without changing it.
type SpecialistAgent interface {
	// Profile returns the agent's static identity.
	Profile() AgentProfile

	// Analyze reviews content against an objective and returns a structured
	// result. Implementations never return a nil result together with a nil
	// error; on unparseable upstream output they degrade to a heuristic
	// result flagged as fallback.
	Analyze(ctx context.Context, content, objective string) (*SpecialistResult, error)

	// ReviewPeer critiques another agent's result in light of the same
	// content, returning free-form critique text.
	ReviewPeer(ctx context.Context, peer *SpecialistResult, content string) (string, error)
}

// Clock abstracts wall time so cooldowns and expirations are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

// RunSummary is the lightweight listing row for a stored run.
type RunSummary struct {
	ID           RunID     `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	Objective    string    `json:"objective"`
	FileCount    int       `json:"file_count"`
	FindingCount int       `json:"finding_count"`
	Status       string    `json:"status"`
}

// RunStore persists completed run results for later inspection.
type RunStore interface {
	SaveRun(ctx context.Context, result *TeamAnalysisResult) error
	GetRun(ctx context.Context, id RunID) (*TeamAnalysisResult, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	PruneRuns(ctx context.Context, keep int, maxAge time.Duration) (int, error)
	Close() error
}
