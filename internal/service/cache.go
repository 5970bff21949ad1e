package service

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

type cacheEntry struct {
	fingerprint string
	payload     *core.CompletionResponse
	createdAt   time.Time
	expiresAt   time.Time
	hitCount    int64
}

// ResponseCache stores completion responses by fingerprint with per-entry
// TTL. Eviction removes expired entries first, then the oldest-created, so a
// hot entry nearing expiry is not kept alive at the expense of fresher work.
// Shared across concurrent runs; all access goes through the mutex.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // creation order, newest at front
	maxEntries int
	ttl        time.Duration
	sliding    bool
	clock      core.Clock

	hits      int64
	misses    int64
	evictions int64
}

// NewResponseCache creates a cache from configuration.
func NewResponseCache(cfg config.CacheConfig, clock core.Clock) *ResponseCache {
	ttl := time.Hour
	if d, err := time.ParseDuration(cfg.TTL); err == nil && d > 0 {
		ttl = d
	}
	maxEntries := cfg.MaxEntries
	if maxEntries < 1 {
		maxEntries = 1000
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	return &ResponseCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		sliding:    cfg.Sliding,
		clock:      clock,
	}
}

// Get returns the cached response for a fingerprint. A hit increments the
// entry's hit count and, when sliding expiration is on, pushes expiresAt
// forward by the TTL.
func (c *ResponseCache) Get(fingerprint string) (*core.CompletionResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := ele.Value.(*cacheEntry)
	now := c.clock.Now()
	if now.After(ent.expiresAt) {
		c.removeElement(ele)
		c.misses++
		return nil, false
	}

	ent.hitCount++
	if c.sliding {
		ent.expiresAt = now.Add(c.ttl)
	}
	c.hits++

	resp := *ent.payload
	resp.Cached = true
	return &resp, true
}

// Put inserts a response under a fingerprint. Re-inserting an existing
// fingerprint replaces the payload and resets the entry's clock.
func (c *ResponseCache) Put(fingerprint string, payload *core.CompletionResponse) {
	if payload == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if ele, ok := c.entries[fingerprint]; ok {
		ent := ele.Value.(*cacheEntry)
		ent.payload = payload
		ent.createdAt = now
		ent.expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(ele)
		return
	}

	ent := &cacheEntry{
		fingerprint: fingerprint,
		payload:     payload,
		createdAt:   now,
		expiresAt:   now.Add(c.ttl),
	}
	c.entries[fingerprint] = c.order.PushFront(ent)
	c.evict(now)
}

// HitCount returns how many times a fingerprint has been served.
func (c *ResponseCache) HitCount(fingerprint string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.entries[fingerprint]; ok {
		return ele.Value.(*cacheEntry).hitCount
	}
	return 0
}

// Len returns the number of stored entries, including expired ones not yet
// collected.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// PurgeExpired removes all expired entries and reports how many went.
func (c *ResponseCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(c.clock.Now())
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Stats returns hit/miss/eviction counters.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// evict enforces the capacity bound. Expired entries go first, then the
// oldest-created. Caller holds the mutex.
func (c *ResponseCache) evict(now time.Time) {
	if c.order.Len() <= c.maxEntries {
		return
	}
	c.purgeExpiredLocked(now)
	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Back())
		c.evictions++
	}
}

func (c *ResponseCache) purgeExpiredLocked(now time.Time) int {
	purged := 0
	for ele := c.order.Back(); ele != nil; {
		prev := ele.Prev()
		if ent := ele.Value.(*cacheEntry); now.After(ent.expiresAt) {
			c.removeElement(ele)
			purged++
		}
		ele = prev
	}
	return purged
}

func (c *ResponseCache) removeElement(ele *list.Element) {
	if ele == nil {
		return
	}
	c.order.Remove(ele)
	delete(c.entries, ele.Value.(*cacheEntry).fingerprint)
}

// CacheDedupMiddleware serves completion calls from the cache and coalesces
// concurrent identical misses: only the first caller reaches upstream, the
// rest share its result. Cache hits never touch the rate limiter or breaker
// below this layer.
func CacheDedupMiddleware(cache *ResponseCache, logger *logging.Logger) core.Middleware {
	group := &singleflight.Group{}
	return func(next core.CompletionClient) core.CompletionClient {
		return &cachingClient{next: next, cache: cache, group: group, logger: logger}
	}
}

type cachingClient struct {
	next   core.CompletionClient
	cache  *ResponseCache
	group  *singleflight.Group
	logger *logging.Logger
}

func (c *cachingClient) Name() string { return c.next.Name() }

func (c *cachingClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	fp := requestFingerprint(req)

	if resp, ok := c.cache.Get(fp); ok {
		c.logger.Debug("cache hit", "fingerprint", shortFingerprint(fp), "hits", c.cache.HitCount(fp))
		return resp, nil
	}

	v, err, shared := c.group.Do(fp, func() (interface{}, error) {
		// A concurrent flight may have filled the cache while we queued.
		if resp, ok := c.cache.Get(fp); ok {
			return resp, nil
		}
		resp, err := c.next.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		c.cache.Put(fp, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp := v.(*core.CompletionResponse)
	if shared {
		// Coalesced callers share the leader's result without their own
		// upstream call.
		shadow := *resp
		shadow.Cached = true
		return &shadow, nil
	}
	return resp, nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// requestFingerprint returns the request's cache identity, deriving one from
// the prompts when the caller did not precompute it.
func requestFingerprint(req core.CompletionRequest) string {
	if req.Fingerprint != "" {
		return req.Fingerprint
	}
	var b strings.Builder
	b.WriteString(req.Model)
	b.WriteByte(':')
	b.WriteString(core.HashContent(req.SystemPrompt))
	b.WriteByte(':')
	b.WriteString(core.HashContent(req.UserPrompt))
	return core.HashContent(b.String())
}
