package service

import (
	"context"
	"sync"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// Stage names for run timing.
const (
	StagePreprocess    = "preprocess"
	StageAgentAnalysis = "agent_analysis"
	StagePeerReview    = "peer_review"
	StageSynthesis     = "synthesis"
)

// RunMetrics collects wall times and upstream-call accounting for one run.
// Safe for concurrent use: agent goroutines record calls while stages are
// being timed.
type RunMetrics struct {
	mu         sync.Mutex
	clock      core.Clock
	startedAt  time.Time
	finishedAt time.Time
	stages     map[string]time.Duration
	llmCalls   int64
	// callWork sums individual upstream call durations; dividing it by the
	// concurrent stages' wall time yields the parallel speedup.
	callWork time.Duration
}

// NewRunMetrics creates a collector and stamps the run start.
func NewRunMetrics(clock core.Clock) *RunMetrics {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &RunMetrics{
		clock:     clock,
		startedAt: clock.Now(),
		stages:    make(map[string]time.Duration),
	}
}

// StageTimer starts timing a stage and returns the function that stops it.
// Repeated timings of the same stage accumulate.
func (m *RunMetrics) StageTimer(stage string) func() {
	start := m.clock.Now()
	return func() {
		elapsed := m.clock.Now().Sub(start)
		m.mu.Lock()
		m.stages[stage] += elapsed
		m.mu.Unlock()
	}
}

// RecordCall accounts one completed upstream call.
func (m *RunMetrics) RecordCall(duration time.Duration) {
	m.mu.Lock()
	m.llmCalls++
	m.callWork += duration
	m.mu.Unlock()
}

// LLMCalls returns the number of upstream calls recorded so far.
func (m *RunMetrics) LLMCalls() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.llmCalls
}

// Finish stamps the run end. Calling it again has no effect.
func (m *RunMetrics) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishedAt.IsZero() {
		m.finishedAt = m.clock.Now()
	}
}

// Snapshot renders the collected numbers. The parallel speedup is the ratio
// of summed call durations to the wall time of the concurrent stages; 1.0
// means no concurrency benefit was realized.
func (m *RunMetrics) Snapshot() core.PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.finishedAt
	if end.IsZero() {
		end = m.clock.Now()
	}

	concurrentWall := m.stages[StageAgentAnalysis] + m.stages[StagePeerReview]
	speedup := 1.0
	if concurrentWall > 0 && m.callWork > concurrentWall {
		speedup = float64(m.callWork) / float64(concurrentWall)
	}

	return core.PerformanceMetrics{
		PreprocessMs:    m.stages[StagePreprocess].Milliseconds(),
		AgentAnalysisMs: m.stages[StageAgentAnalysis].Milliseconds(),
		PeerReviewMs:    m.stages[StagePeerReview].Milliseconds(),
		SynthesisMs:     m.stages[StageSynthesis].Milliseconds(),
		TotalMs:         end.Sub(m.startedAt).Milliseconds(),
		LLMCallCount:    m.llmCalls,
		ParallelSpeedup: speedup,
	}
}

type runMetricsKey struct{}

// WithRunMetrics attaches a run's collector to the context so the shared
// client chain attributes calls to the run that issued them.
func WithRunMetrics(ctx context.Context, metrics *RunMetrics) context.Context {
	return context.WithValue(ctx, runMetricsKey{}, metrics)
}

// RunMetricsFrom extracts the collector attached by WithRunMetrics.
func RunMetricsFrom(ctx context.Context) (*RunMetrics, bool) {
	metrics, ok := ctx.Value(runMetricsKey{}).(*RunMetrics)
	return metrics, ok
}

// stageTimerFrom times a stage against the context's run metrics, or does
// nothing when the context carries none.
func stageTimerFrom(ctx context.Context, stage string) func() {
	if metrics, ok := RunMetricsFrom(ctx); ok {
		return metrics.StageTimer(stage)
	}
	return func() {}
}

// MetricsMiddleware counts upstream calls against the context's RunMetrics.
// Placed innermost in the chain it sees real upstream attempts: retries
// count individually, cache hits and circuit fast-fails never reach it.
func MetricsMiddleware(clock core.Clock) core.Middleware {
	if clock == nil {
		clock = core.SystemClock()
	}
	return func(next core.CompletionClient) core.CompletionClient {
		return &meteredClient{next: next, clock: clock}
	}
}

type meteredClient struct {
	next  core.CompletionClient
	clock core.Clock
}

func (c *meteredClient) Name() string { return c.next.Name() }

func (c *meteredClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	start := c.clock.Now()
	resp, err := c.next.Complete(ctx, req)
	if metrics, ok := RunMetricsFrom(ctx); ok {
		metrics.RecordCall(c.clock.Now().Sub(start))
	}
	return resp, err
}
