package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// CircuitBreaker gates calls to one upstream dependency. It lives for the
// whole process and is shared across concurrent runs, so every state change
// happens under the mutex.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	clock            core.Clock

	mu                   sync.Mutex
	status               core.CircuitStatus
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	probing              bool
}

// NewCircuitBreaker creates a closed breaker for the named dependency.
func NewCircuitBreaker(name string, cfg config.BreakerConfig, clock core.Clock) *CircuitBreaker {
	cooldown := 60 * time.Second
	if d, err := time.ParseDuration(cfg.Cooldown); err == nil {
		cooldown = d
	}
	failureThreshold := cfg.FailureThreshold
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	successThreshold := cfg.SuccessThreshold
	if successThreshold < 1 {
		successThreshold = 1
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		clock:            clock,
		status:           core.CircuitClosed,
	}
}

// Allow reports whether a call may proceed right now. In half-open state at
// most one probe is in flight; additional callers fail fast until the probe
// resolves.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case core.CircuitClosed:
		return nil
	case core.CircuitOpen:
		if b.clock.Now().Sub(b.openedAt) >= b.cooldown {
			b.status = core.CircuitHalfOpen
			b.consecutiveSuccesses = 0
			b.probing = true
			return nil
		}
		return core.ErrCircuitOpen(b.name)
	default: // half-open
		if b.probing {
			return core.ErrCircuitOpen(b.name)
		}
		b.probing = true
		return nil
	}
}

// RecordSuccess registers a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case core.CircuitClosed:
		b.consecutiveFailures = 0
	case core.CircuitHalfOpen:
		b.probing = false
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			b.status = core.CircuitClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	}
}

// RecordFailure registers a failed call.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case core.CircuitClosed:
		b.consecutiveSuccesses = 0
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.trip()
		}
	case core.CircuitHalfOpen:
		// A failed probe reopens immediately.
		b.probing = false
		b.trip()
	}
}

// trip moves to open. Caller holds the mutex.
func (b *CircuitBreaker) trip() {
	b.status = core.CircuitOpen
	b.openedAt = b.clock.Now()
	b.consecutiveSuccesses = 0
}

// State returns a snapshot for diagnostics.
func (b *CircuitBreaker) State() core.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.CircuitState{
		Status:               b.status,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		OpenedAt:             b.openedAt,
	}
}

// BreakerMiddleware wraps a completion client with the circuit breaker.
// Context cancellation is not counted as an upstream failure.
func BreakerMiddleware(breaker *CircuitBreaker, logger *logging.Logger) core.Middleware {
	return func(next core.CompletionClient) core.CompletionClient {
		return &breakerClient{next: next, breaker: breaker, logger: logger}
	}
}

type breakerClient struct {
	next    core.CompletionClient
	breaker *CircuitBreaker
	logger  *logging.Logger
}

func (c *breakerClient) Name() string { return c.next.Name() }

func (c *breakerClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.Debug("circuit rejected call", "upstream", c.next.Name())
		return nil, err
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancelled work says nothing about upstream health. Release the
			// half-open probe slot without changing counters.
			c.breaker.releaseProbe()
			return nil, err
		}
		c.breaker.RecordFailure()
		if st := c.breaker.State(); st.Status == core.CircuitOpen {
			c.logger.Warn("circuit opened",
				"upstream", c.next.Name(),
				"consecutive_failures", st.ConsecutiveFailures)
		}
		return nil, err
	}

	c.breaker.RecordSuccess()
	return resp, nil
}

// releaseProbe frees the half-open probe slot after an inconclusive call.
func (b *CircuitBreaker) releaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == core.CircuitHalfOpen {
		b.probing = false
	}
}
