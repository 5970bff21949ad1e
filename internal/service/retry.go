package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// RetryPolicy defines backoff behavior for transient upstream failures.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // 0.0 to 1.0
	Multiplier   float64 // Exponential factor
}

// DefaultRetryPolicy returns a default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
		Multiplier:   2.0,
	}
}

// RetryPolicyFromConfig builds a policy from validated configuration.
// Durations were checked by the config validator, so parse errors here fall
// back to defaults rather than failing.
func RetryPolicyFromConfig(cfg config.RetryConfig) *RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if d, err := time.ParseDuration(cfg.BaseDelay); err == nil {
		p.BaseDelay = d
	}
	if d, err := time.ParseDuration(cfg.MaxDelay); err == nil {
		p.MaxDelay = d
	}
	if cfg.Multiplier >= 1 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.JitterFactor >= 0 && cfg.JitterFactor <= 1 {
		p.JitterFactor = cfg.JitterFactor
	}
	return p
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// Execute runs the function with retry logic. Only errors classified as
// retryable by the domain taxonomy are retried; everything else surfaces
// immediately.
func (p *RetryPolicy) Execute(ctx context.Context, fn RetryableFunc) error {
	return p.ExecuteWithNotify(ctx, fn, nil)
}

// RetryNotifyFunc is called before each backoff wait.
type RetryNotifyFunc func(attempt int, err error, delay time.Duration)

// ExecuteWithNotify runs with retry and per-attempt notifications.
func (p *RetryPolicy) ExecuteWithNotify(ctx context.Context, fn RetryableFunc, notify RetryNotifyFunc) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !core.IsRetryable(err) {
			return err
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.CalculateDelay(attempt)

		if notify != nil {
			notify(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RetryExhaustedError{
		Attempts: p.MaxAttempts,
		LastErr:  lastErr,
	}
}

// CalculateDelay computes the delay for a given attempt.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	// Exponential backoff: baseDelay * multiplier^(attempt-1)
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))

	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		delay = addJitter(delay, p.JitterFactor)
	}

	return time.Duration(delay)
}

// CalculateDelayNoJitter computes the delay without jitter (for testing).
func (p *RetryPolicy) CalculateDelayNoJitter(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// addJitter adds random jitter to a delay.
func addJitter(delay float64, factor float64) float64 {
	jitter := delay * factor
	// Random value between -jitter and +jitter
	randomJitter := (rand.Float64()*2 - 1) * jitter
	return delay + randomJitter
}

// RetryExhaustedError indicates all retry attempts failed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	_, ok := err.(*RetryExhaustedError)
	return ok
}

// RetryMiddleware wraps a completion client with the retry policy. Each
// attempt goes back through every inner layer, so an open circuit stops the
// loop via its non-retryable error.
func RetryMiddleware(policy *RetryPolicy, logger *logging.Logger) core.Middleware {
	return func(next core.CompletionClient) core.CompletionClient {
		return &retryingClient{next: next, policy: policy, logger: logger}
	}
}

type retryingClient struct {
	next   core.CompletionClient
	policy *RetryPolicy
	logger *logging.Logger
}

func (c *retryingClient) Name() string { return c.next.Name() }

func (c *retryingClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	var resp *core.CompletionResponse
	err := c.policy.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.next.Complete(ctx, req)
		return callErr
	}, func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("upstream call failed, backing off",
			"upstream", c.next.Name(),
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error())
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
