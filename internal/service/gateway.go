package service

import (
	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// Gateway owns the shared resilience state around one upstream completion
// dependency and assembles the middleware chain agents call through. The
// cache, circuit state and rate limiter windows live here so they survive
// across analysis runs; the chains themselves are cheap per-agent views.
type Gateway struct {
	provider core.CompletionClient
	cache    *ResponseCache
	breaker  *CircuitBreaker
	limiters *RateLimiterRegistry
	policy   *RetryPolicy
	clock    core.Clock
	logger   *logging.Logger

	cacheEnabled bool
}

// NewGateway wires the resilience layers around a provider adapter.
func NewGateway(provider core.CompletionClient, cfg *config.Config, clock core.Clock, logger *logging.Logger) *Gateway {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &Gateway{
		provider:     provider,
		cache:        NewResponseCache(cfg.Cache, clock),
		breaker:      NewCircuitBreaker(provider.Name(), cfg.Gateway.Breaker, clock),
		limiters:     NewRateLimiterRegistry(cfg.RateLimit, clock),
		policy:       RetryPolicyFromConfig(cfg.Gateway.Retry),
		clock:        clock,
		logger:       logger,
		cacheEnabled: cfg.Cache.Enabled,
	}
}

// ClientFor returns the completion chain for one agent identity. Outermost
// to innermost: cache, rate limit, retry, breaker, metrics. Retry sits
// outside the breaker so each attempt is health-checked, and circuit
// rejections are non-retryable so an open circuit still fails fast. The
// metrics layer is innermost: it counts real upstream attempts only, never
// cache hits or fast-fails.
func (g *Gateway) ClientFor(agent string) core.CompletionClient {
	mws := make([]core.Middleware, 0, 5)
	if g.cacheEnabled {
		mws = append(mws, CacheDedupMiddleware(g.cache, g.logger))
	}
	mws = append(mws,
		RateLimitMiddleware(g.limiters.Get(agent), g.limiters.Mode(), agent, g.logger),
		RetryMiddleware(g.policy, g.logger),
		BreakerMiddleware(g.breaker, g.logger),
		MetricsMiddleware(g.clock),
	)
	return core.Chain(g.provider, mws...)
}

// Cache exposes the shared response cache for stats and administration.
func (g *Gateway) Cache() *ResponseCache { return g.cache }

// Breaker exposes the shared circuit state for diagnostics.
func (g *Gateway) Breaker() *CircuitBreaker { return g.breaker }

// Limiters exposes the per-agent window registry for diagnostics.
func (g *Gateway) Limiters() *RateLimiterRegistry { return g.limiters }
