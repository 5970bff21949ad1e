package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// scriptClient returns canned responses or errors in order, then repeats the
// final entry. Safe for concurrent use.
type scriptClient struct {
	name    string
	mu      sync.Mutex
	step    int
	replies []scriptReply
	calls   atomic.Int64
}

type scriptReply struct {
	text string
	err  error
}

func newScriptClient(name string, replies ...scriptReply) *scriptClient {
	return &scriptClient{name: name, replies: replies}
}

func (c *scriptClient) Name() string {
	if c.name != "" {
		return c.name
	}
	return "script"
}

func (c *scriptClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.calls.Add(1)

	c.mu.Lock()
	idx := c.step
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	} else {
		c.step++
	}
	reply := c.replies[idx]
	c.mu.Unlock()

	if reply.err != nil {
		return nil, reply.err
	}
	return &core.CompletionResponse{
		Text:      reply.text,
		Model:     req.Model,
		TokensIn:  len(req.UserPrompt) / 4,
		TokensOut: len(reply.text) / 4,
	}, nil
}

func (c *scriptClient) callCount() int64 { return c.calls.Load() }

// fakeClock is a manually advanced clock for cooldown and TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
