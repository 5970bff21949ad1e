package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// Coordinator runs the discussion round after individual analysis: every
// agent reviews every other agent's result concurrently, all messages land
// in an append-only transcript under one conversation ID, and an optional
// synthesis call condenses the transcript into an executive summary.
type Coordinator struct {
	peerReviewEnabled bool
	synthesisEnabled  bool
	prompts           *PromptRenderer
	synthesisClient   core.CompletionClient
	model             string
	maxTokens         int
	temperature       float64
	clock             core.Clock
	logger            *logging.Logger
}

// NewCoordinator creates a coordinator. synthesisClient may be nil when
// synthesis is disabled.
func NewCoordinator(review config.ReviewConfig, upstream config.UpstreamConfig, prompts *PromptRenderer, synthesisClient core.CompletionClient, clock core.Clock, logger *logging.Logger) *Coordinator {
	if clock == nil {
		clock = core.SystemClock()
	}
	maxTokens := upstream.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Coordinator{
		peerReviewEnabled: review.PeerReviewEnabled,
		synthesisEnabled:  review.SynthesisEnabled,
		prompts:           prompts,
		synthesisClient:   synthesisClient,
		model:             upstream.Model,
		maxTokens:         maxTokens,
		temperature:       upstream.Temperature,
		clock:             clock,
		logger:            logger,
	}
}

// DiscussionRound is the outcome of one coordinated peer-review pass.
type DiscussionRound struct {
	ConversationID string
	Transcript     []core.PeerReviewMessage
	Summary        string
	ReviewCalls    int
	FailedReviews  int
	SynthesisCalls int
}

// transcript is the append-only message log for one conversation. Appends
// from concurrent reviews are serialized; order within the log is append
// order, with no cross-pair guarantee.
type transcript struct {
	mu             sync.Mutex
	conversationID string
	clock          core.Clock
	messages       []core.PeerReviewMessage
}

func newTranscript(clock core.Clock) *transcript {
	return &transcript{
		conversationID: uuid.New().String(),
		clock:          clock,
	}
}

func (t *transcript) append(from, to string, typ core.MessageType, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, core.PeerReviewMessage{
		ConversationID: t.conversationID,
		FromAgent:      from,
		ToAgent:        to,
		Type:           typ,
		Content:        content,
		Timestamp:      t.clock.Now(),
	})
}

func (t *transcript) snapshot() []core.PeerReviewMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.PeerReviewMessage(nil), t.messages...)
}

// RunDiscussion issues K×(K−1) peer reviews concurrently and waits for all
// of them, success or caught failure, before returning. A failed review
// never cancels its siblings; it is logged, counted, and the round moves on.
func (c *Coordinator) RunDiscussion(ctx context.Context, agents []core.SpecialistAgent, results []core.SpecialistResult, content, objective string, fileCount int) *DiscussionRound {
	log := newTranscript(c.clock)
	round := &DiscussionRound{ConversationID: log.conversationID}

	byName := make(map[string]core.SpecialistAgent, len(agents))
	for _, agent := range agents {
		byName[agent.Profile().Name] = agent
	}

	// Seed the transcript with each agent's analysis position, in a
	// deterministic order.
	ordered := append([]core.SpecialistResult(nil), results...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].AgentName < ordered[j].AgentName })
	for _, result := range ordered {
		log.append(result.AgentName, "", core.MessageAnalysis, analysisDigest(result))
	}

	if c.peerReviewEnabled && len(results) > 1 {
		stopReview := stageTimerFrom(ctx, StagePeerReview)
		var failedMu sync.Mutex
		failed := 0
		g, reviewCtx := errgroup.WithContext(ctx)
		for i := range ordered {
			for j := range ordered {
				if i == j {
					continue
				}
				author := ordered[j]
				reviewer, ok := byName[ordered[i].AgentName]
				if !ok {
					continue
				}
				round.ReviewCalls++
				g.Go(func() error {
					critique, err := reviewer.ReviewPeer(reviewCtx, &author, content)
					if err != nil {
						c.logger.Warn("peer review failed",
							"reviewer", reviewer.Profile().Name,
							"author", author.AgentName,
							"error", err)
						failedMu.Lock()
						failed++
						failedMu.Unlock()
						return nil
					}
					log.append(reviewer.Profile().Name, author.AgentName, core.MessagePeerReview, critique)
					return nil
				})
			}
		}
		// Join barrier: the round is done only when every review returned.
		_ = g.Wait()
		round.FailedReviews = failed
		stopReview()
	}

	if c.synthesisEnabled && c.synthesisClient != nil {
		stopSynthesis := stageTimerFrom(ctx, StageSynthesis)
		summary, err := c.synthesize(ctx, log, ordered, objective, fileCount)
		round.SynthesisCalls = 1
		if err != nil {
			c.logger.Warn("synthesis failed", "error", err)
		} else {
			round.Summary = summary
			log.append("council", "", core.MessageSynthesis, summary)
		}
		stopSynthesis()
	}

	round.Transcript = log.snapshot()
	return round
}

// synthesize condenses the transcript into an executive summary via one
// additional upstream call.
func (c *Coordinator) synthesize(ctx context.Context, log *transcript, results []core.SpecialistResult, objective string, fileCount int) (string, error) {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.AgentName)
	}

	messages := log.snapshot()
	entries := make([]TranscriptEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, TranscriptEntry{
			From:    msg.FromAgent,
			To:      msg.ToAgent,
			Type:    string(msg.Type),
			Content: msg.Content,
		})
	}

	prompt, err := c.prompts.RenderSynthesis(SynthesisParams{
		Objective:  objective,
		FileCount:  fileCount,
		AgentNames: names,
		Entries:    entries,
	})
	if err != nil {
		return "", core.ErrInternal("rendering synthesis prompt").WithCause(err)
	}

	resp, err := c.synthesisClient.Complete(ctx, core.CompletionRequest{
		SystemPrompt: "You are the moderator of a multi-agent code review council. Write for engineering leadership.",
		UserPrompt:   prompt,
		Model:        c.model,
		MaxTokens:    c.maxTokens,
		Temperature:  c.temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// analysisDigest renders one agent's position as a transcript entry.
func analysisDigest(result core.SpecialistResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "reported %d finding(s) with confidence %.2f", len(result.Findings), result.ConfidenceScore)
	if result.Fallback {
		b.WriteString(" (heuristic fallback)")
	}
	if result.BusinessImpactText != "" {
		b.WriteString(": ")
		b.WriteString(result.BusinessImpactText)
	}
	return b.String()
}
