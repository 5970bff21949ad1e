package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// Rate limiter modes.
const (
	RateLimitModeBlock  = "block"
	RateLimitModeReject = "reject"
)

// SlidingWindowLimiter caps the number of requests granted to one identity
// within a trailing time window. Grants are timestamps; a slot frees when the
// oldest grant slides out of the window.
type SlidingWindowLimiter struct {
	maxRequests int
	window      time.Duration
	clock       core.Clock

	mu     sync.Mutex
	grants []time.Time
}

// NewSlidingWindowLimiter creates a limiter allowing maxRequests per window.
func NewSlidingWindowLimiter(maxRequests int, window time.Duration, clock core.Clock) *SlidingWindowLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
		grants:      make([]time.Time, 0, maxRequests),
	}
}

// TryAcquire grants a slot without blocking. Returns false when the window
// is full.
func (l *SlidingWindowLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	if len(l.grants) >= l.maxRequests {
		return false
	}
	l.grants = append(l.grants, now)
	return true
}

// Acquire blocks until a slot is granted or the context is cancelled.
func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.prune(now)
		if len(l.grants) < l.maxRequests {
			l.grants = append(l.grants, now)
			l.mu.Unlock()
			return nil
		}
		// Oldest grant leaving the window frees the next slot.
		wait := l.grants[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Available returns how many slots remain in the current window.
func (l *SlidingWindowLimiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return l.maxRequests - len(l.grants)
}

// InWindow returns the number of grants currently counted.
func (l *SlidingWindowLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return len(l.grants)
}

// prune drops grants older than the window. Caller holds the mutex.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// RateLimiterRegistry manages one limiter per agent identity, all sharing a
// single configuration.
type RateLimiterRegistry struct {
	maxRequests int
	window      time.Duration
	mode        string
	clock       core.Clock

	mu       sync.RWMutex
	limiters map[string]*SlidingWindowLimiter
}

// NewRateLimiterRegistry creates a registry from configuration.
func NewRateLimiterRegistry(cfg config.RateLimitConfig, clock core.Clock) *RateLimiterRegistry {
	window := time.Minute
	if d, err := time.ParseDuration(cfg.Window); err == nil && d > 0 {
		window = d
	}
	maxRequests := cfg.MaxRequests
	if maxRequests < 1 {
		maxRequests = 30
	}
	mode := cfg.Mode
	if mode != RateLimitModeReject {
		mode = RateLimitModeBlock
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	return &RateLimiterRegistry{
		maxRequests: maxRequests,
		window:      window,
		mode:        mode,
		clock:       clock,
		limiters:    make(map[string]*SlidingWindowLimiter),
	}
}

// Get returns the limiter for an identity, creating it on first use.
func (r *RateLimiterRegistry) Get(identity string) *SlidingWindowLimiter {
	r.mu.RLock()
	limiter, ok := r.limiters[identity]
	r.mu.RUnlock()
	if ok {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.limiters[identity]; ok {
		return limiter
	}
	limiter = NewSlidingWindowLimiter(r.maxRequests, r.window, r.clock)
	r.limiters[identity] = limiter
	return limiter
}

// Mode returns the configured overflow behavior.
func (r *RateLimiterRegistry) Mode() string { return r.mode }

// RateLimiterStatus describes one identity's window occupancy.
type RateLimiterStatus struct {
	InWindow    int           `json:"in_window"`
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
}

// Status reports window occupancy for every known identity.
func (r *RateLimiterRegistry) Status() map[string]RateLimiterStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[string]RateLimiterStatus, len(r.limiters))
	for name, limiter := range r.limiters {
		status[name] = RateLimiterStatus{
			InWindow:    limiter.InWindow(),
			MaxRequests: r.maxRequests,
			Window:      r.window,
		}
	}
	return status
}

// RateLimitMiddleware throttles completion calls for one identity. In block
// mode callers wait for a slot, bounded by their context; in reject mode
// overflow calls fail immediately with a rate limit error.
func RateLimitMiddleware(limiter *SlidingWindowLimiter, mode, identity string, logger *logging.Logger) core.Middleware {
	return func(next core.CompletionClient) core.CompletionClient {
		return &rateLimitedClient{
			next:     next,
			limiter:  limiter,
			mode:     mode,
			identity: identity,
			logger:   logger,
		}
	}
}

type rateLimitedClient struct {
	next     core.CompletionClient
	limiter  *SlidingWindowLimiter
	mode     string
	identity string
	logger   *logging.Logger
}

func (c *rateLimitedClient) Name() string { return c.next.Name() }

func (c *rateLimitedClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	if c.mode == RateLimitModeReject {
		if !c.limiter.TryAcquire() {
			return nil, core.ErrRateLimit(fmt.Sprintf("window full for %s", c.identity))
		}
	} else {
		if c.limiter.Available() == 0 {
			c.logger.Debug("rate limit reached, waiting for slot", "identity", c.identity)
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	return c.next.Complete(ctx, req)
}
