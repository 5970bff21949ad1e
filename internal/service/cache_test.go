package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

func testCache(clock core.Clock, sliding bool, maxEntries int) *ResponseCache {
	return NewResponseCache(config.CacheConfig{
		Enabled:    true,
		TTL:        "1m",
		Sliding:    sliding,
		MaxEntries: maxEntries,
	}, clock)
}

func TestResponseCache_MissThenHit(t *testing.T) {
	cache := testCache(newFakeClock(), false, 10)

	if _, ok := cache.Get("fp-1"); ok {
		t.Fatal("Get() on empty cache = hit, want miss")
	}

	cache.Put("fp-1", &core.CompletionResponse{Text: "analysis"})
	resp, ok := cache.Get("fp-1")
	if !ok {
		t.Fatal("Get() after Put = miss, want hit")
	}
	if resp.Text != "analysis" {
		t.Errorf("payload = %q, want %q", resp.Text, "analysis")
	}
	if !resp.Cached {
		t.Error("hit response not marked cached")
	}
	if got := cache.HitCount("fp-1"); got != 1 {
		t.Errorf("HitCount = %d, want 1", got)
	}

	cache.Get("fp-1")
	cache.Get("fp-1")
	if got := cache.HitCount("fp-1"); got != 3 {
		t.Errorf("HitCount after three hits = %d, want 3", got)
	}
}

func TestResponseCache_AbsoluteExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := testCache(clock, false, 10)

	cache.Put("fp-1", &core.CompletionResponse{Text: "x"})
	clock.Advance(50 * time.Second)
	if _, ok := cache.Get("fp-1"); !ok {
		t.Fatal("Get() before TTL = miss, want hit")
	}

	// Without sliding expiration the earlier hit did not extend the entry.
	clock.Advance(11 * time.Second)
	if _, ok := cache.Get("fp-1"); ok {
		t.Error("Get() after TTL = hit, want miss")
	}
}

func TestResponseCache_SlidingExpiryExtendsOnHit(t *testing.T) {
	clock := newFakeClock()
	cache := testCache(clock, true, 10)

	cache.Put("fp-1", &core.CompletionResponse{Text: "x"})
	for i := 0; i < 3; i++ {
		clock.Advance(50 * time.Second)
		if _, ok := cache.Get("fp-1"); !ok {
			t.Fatalf("Get() %d on sliding cache = miss, want hit (expiry should slide)", i)
		}
	}

	clock.Advance(61 * time.Second)
	if _, ok := cache.Get("fp-1"); ok {
		t.Error("Get() after idle TTL = hit, want miss")
	}
}

func TestResponseCache_EvictsExpiredBeforeOldest(t *testing.T) {
	clock := newFakeClock()
	cache := testCache(clock, false, 2)

	cache.Put("stale", &core.CompletionResponse{Text: "a"})
	clock.Advance(61 * time.Second)
	cache.Put("fresh-1", &core.CompletionResponse{Text: "b"})
	cache.Put("fresh-2", &core.CompletionResponse{Text: "c"})

	if _, ok := cache.Get("stale"); ok {
		t.Error("expired entry survived eviction")
	}
	if _, ok := cache.Get("fresh-1"); !ok {
		t.Error("fresh-1 evicted although an expired entry was available")
	}
	if _, ok := cache.Get("fresh-2"); !ok {
		t.Error("fresh-2 missing")
	}
	if got := cache.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestResponseCache_EvictsOldestCreatedWhenNoneExpired(t *testing.T) {
	clock := newFakeClock()
	cache := testCache(clock, false, 2)

	cache.Put("first", &core.CompletionResponse{Text: "a"})
	clock.Advance(time.Second)
	cache.Put("second", &core.CompletionResponse{Text: "b"})
	clock.Advance(time.Second)
	cache.Put("third", &core.CompletionResponse{Text: "c"})

	if _, ok := cache.Get("first"); ok {
		t.Error("oldest-created entry survived capacity eviction")
	}
	for _, fp := range []string{"second", "third"} {
		if _, ok := cache.Get(fp); !ok {
			t.Errorf("entry %q missing after eviction", fp)
		}
	}
}

func TestResponseCache_HitsDoNotProtectFromEviction(t *testing.T) {
	clock := newFakeClock()
	cache := testCache(clock, false, 2)

	cache.Put("first", &core.CompletionResponse{Text: "a"})
	clock.Advance(time.Second)
	cache.Put("second", &core.CompletionResponse{Text: "b"})

	// Heavy traffic on the oldest entry. Eviction is by creation age, not
	// recency of use, so this must not save it.
	for i := 0; i < 5; i++ {
		cache.Get("first")
	}
	clock.Advance(time.Second)
	cache.Put("third", &core.CompletionResponse{Text: "c"})

	if _, ok := cache.Get("first"); ok {
		t.Error("hit traffic protected oldest-created entry from eviction")
	}
	if _, ok := cache.Get("second"); !ok {
		t.Error("second entry missing")
	}
}

func TestResponseCache_Stats(t *testing.T) {
	cache := testCache(newFakeClock(), false, 10)

	cache.Get("missing")
	cache.Put("fp-1", &core.CompletionResponse{Text: "x"})
	cache.Get("fp-1")

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, 1 entry", stats)
	}
}

func TestCacheDedupMiddleware_ServesRepeatsFromCache(t *testing.T) {
	cache := testCache(newFakeClock(), false, 10)
	upstream := newScriptClient("anthropic", scriptReply{text: "verdict"})
	client := CacheDedupMiddleware(cache, logging.NewNop())(upstream)

	req := core.CompletionRequest{Fingerprint: "fp-1", UserPrompt: "review this"}
	first, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("first Complete() = %v", err)
	}
	if first.Cached {
		t.Error("first response marked cached")
	}

	second, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("second Complete() = %v", err)
	}
	if !second.Cached {
		t.Error("second response not marked cached")
	}
	if got := upstream.callCount(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestCacheDedupMiddleware_FailuresNotCached(t *testing.T) {
	cache := testCache(newFakeClock(), false, 10)
	upstream := newScriptClient("anthropic",
		scriptReply{err: core.ErrUpstream(core.CodeUpstreamUnavailable, "503")},
		scriptReply{text: "ok"},
	)
	client := CacheDedupMiddleware(cache, logging.NewNop())(upstream)
	req := core.CompletionRequest{Fingerprint: "fp-1"}

	if _, err := client.Complete(context.Background(), req); err == nil {
		t.Fatal("first Complete() = nil error, want failure")
	}
	resp, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("second Complete() = %v, want retrying the upstream to succeed", err)
	}
	if resp.Cached {
		t.Error("fresh response after failure marked cached")
	}
	if got := upstream.callCount(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

// gateClient blocks completions until released, to hold a flight open while
// concurrent callers pile up behind it.
type gateClient struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   int
	mu      sync.Mutex
}

func (g *gateClient) Name() string { return "gate" }

func (g *gateClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.once.Do(func() { close(g.started) })
	<-g.release
	return &core.CompletionResponse{Text: "shared"}, nil
}

func TestCacheDedupMiddleware_CoalescesConcurrentIdenticalCalls(t *testing.T) {
	cache := testCache(newFakeClock(), false, 10)
	gate := &gateClient{started: make(chan struct{}), release: make(chan struct{})}
	client := CacheDedupMiddleware(cache, logging.NewNop())(gate)
	req := core.CompletionRequest{Fingerprint: "fp-shared"}

	results := make(chan *core.CompletionResponse, 5)
	errs := make(chan error, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Complete(context.Background(), req)
			results <- resp
			errs <- err
		}()
		if i == 0 {
			<-gate.started
		}
	}

	time.Sleep(20 * time.Millisecond) // let followers queue behind the flight
	close(gate.release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Complete() = %v, want nil", err)
		}
	}
	for resp := range results {
		if resp.Text != "shared" {
			t.Errorf("response = %q, want %q", resp.Text, "shared")
		}
	}

	gate.mu.Lock()
	calls := gate.calls
	gate.mu.Unlock()
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (others coalesced)", calls)
	}
}

func TestRequestFingerprint(t *testing.T) {
	explicit := core.CompletionRequest{Fingerprint: "precomputed"}
	if got := requestFingerprint(explicit); got != "precomputed" {
		t.Errorf("explicit fingerprint = %q, want %q", got, "precomputed")
	}

	a := core.CompletionRequest{Model: "m", SystemPrompt: "s", UserPrompt: "u"}
	b := core.CompletionRequest{Model: "m", SystemPrompt: "s", UserPrompt: "u"}
	if requestFingerprint(a) != requestFingerprint(b) {
		t.Error("identical requests derived different fingerprints")
	}

	c := core.CompletionRequest{Model: "m", SystemPrompt: "s", UserPrompt: "different"}
	if requestFingerprint(a) == requestFingerprint(c) {
		t.Error("different prompts derived the same fingerprint")
	}
}
