package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// discussionContentCap bounds the code context handed to the peer review
// round; past it reviewers work from the authors' findings alone.
const discussionContentCap = 24000

// Engine drives one full council run: batching, concurrent specialist
// analysis, peer review, consensus, conflict resolution and recommendation
// synthesis. The engine holds no state across runs; everything durable
// (cache, circuit, rate limiter windows) lives in the gateway beneath the
// agents' client chains.
type Engine struct {
	scheduler   *BatchScheduler
	agents      []core.SpecialistAgent
	coordinator *Coordinator
	consensus   *ConsensusCalculator
	conflicts   *ConflictResolver
	synthesizer *RecommendationSynthesizer
	clock       core.Clock
	logger      *logging.Logger
}

// NewEngine assembles a run engine from pre-built agents and coordinator.
func NewEngine(cfg *config.Config, agents []core.SpecialistAgent, coordinator *Coordinator, clock core.Clock, logger *logging.Logger) *Engine {
	if clock == nil {
		clock = core.SystemClock()
	}
	return &Engine{
		scheduler:   NewBatchScheduler(cfg.Scheduler, logger),
		agents:      agents,
		coordinator: coordinator,
		consensus:   NewConsensusCalculator(cfg.Consensus),
		conflicts:   NewConflictResolver(cfg.Conflicts, logger),
		synthesizer: NewRecommendationSynthesizer(cfg.Recommendations, logger),
		clock:       clock,
		logger:      logger.WithComponent("engine"),
	}
}

// BuildEngine wires the whole council: roster, gateway chains, coordinator,
// engine. The returned gateway carries the state that survives across runs.
func BuildEngine(cfg *config.Config, provider core.CompletionClient, clock core.Clock, logger *logging.Logger) (*Engine, *Gateway, error) {
	prompts, err := NewPromptRenderer()
	if err != nil {
		return nil, nil, err
	}
	profiles, err := BuildRoster(cfg.Agents)
	if err != nil {
		return nil, nil, err
	}
	gateway := NewGateway(provider, cfg, clock, logger)
	agents := make([]core.SpecialistAgent, 0, len(profiles))
	for _, profile := range profiles {
		agents = append(agents, NewSpecialist(profile, gateway.ClientFor(profile.Name), prompts, cfg.Upstream, logger))
	}
	coordinator := NewCoordinator(cfg.Review, cfg.Upstream, prompts, gateway.ClientFor("council"), clock, logger)
	return NewEngine(cfg, agents, coordinator, clock, logger), gateway, nil
}

// Run analyzes the given files against the objective and returns the
// council's combined verdict. Batches run sequentially; within a batch every
// agent works concurrently. Cancellation stops new batches but the result
// still carries everything gathered up to that point, so Run returns an
// error only for invalid input.
func (e *Engine) Run(ctx context.Context, files []core.FileUnit, objective string) (*core.TeamAnalysisResult, error) {
	if len(files) == 0 {
		return nil, core.ErrValidation(core.CodeNoFiles, "nothing to analyze")
	}
	if len(e.agents) == 0 {
		return nil, core.ErrValidation(core.CodeNoAgents, "no specialist agents enabled")
	}

	runID := core.RunID(uuid.New().String())
	metrics := NewRunMetrics(e.clock)
	ctx = WithRunMetrics(ctx, metrics)
	log := e.logger.WithRun(string(runID))
	startedAt := e.clock.Now()

	log.Info("council run started",
		"files", len(files), "agents", len(e.agents), "objective", log.Sanitize(objective))

	stopPreprocess := metrics.StageTimer(StagePreprocess)
	batches := e.scheduler.PlanBatches(files)
	stopPreprocess()

	collector := newRunCollector(files)
	var contentParts []string

	stopAnalysis := metrics.StageTimer(StageAgentAnalysis)
	completed := 0
	for _, batch := range batches {
		if ctx.Err() != nil {
			log.Warn("run cancelled, keeping partial results",
				"completed_batches", completed, "total_batches", len(batches))
			break
		}
		content := e.scheduler.RenderContent(batch)
		contentParts = append(contentParts, content)
		e.runBatch(ctx, log, collector, batch, content, objective)
		completed++
	}
	stopAnalysis()

	merged := collector.mergedResults(e.agentNames())

	discussion := e.coordinator.RunDiscussion(ctx, e.agents, merged,
		clipContent(strings.Join(contentParts, "\n\n"), discussionContentCap), objective, len(files))

	entries := e.consensus.Evaluate(merged)
	resolved := e.conflicts.Resolve(merged)
	recommendations := e.synthesizer.Synthesize(merged)

	metrics.Finish()

	summary := discussion.Summary
	if summary == "" {
		summary = runDigest(files, merged, entries)
	}

	result := &core.TeamAnalysisResult{
		RunID:             runID,
		Objective:         objective,
		StartedAt:         startedAt,
		CompletedAt:       e.clock.Now(),
		Files:             collector.assessments(merged),
		IndividualResults: merged,
		Consensus:         entries,
		Conflicts:         resolved,
		Recommendations:   recommendations,
		Transcript:        discussion.Transcript,
		ExecutiveSummary:  summary,
		Metrics:           metrics.Snapshot(),
	}

	log.Info("council run finished",
		"files", len(result.Files),
		"findings", totalFindings(merged),
		"conflicts", len(resolved),
		"llm_calls", result.Metrics.LLMCallCount,
		"total_ms", result.Metrics.TotalMs)
	return result, nil
}

// runBatch fans one batch out to every agent concurrently and waits for all
// of them. A failed batch call is re-dispatched file by file, so a poisoned
// batch cannot take every file in it down.
func (e *Engine) runBatch(ctx context.Context, log *logging.Logger, collector *runCollector, batch core.Batch, content, objective string) {
	blog := log.WithBatch(batch.Index, batch.ModuleKey)
	blog.Debug("batch dispatched",
		"files", len(batch.Files), "estimated_tokens", batch.EstimatedTokens)

	g, gctx := errgroup.WithContext(ctx)
	for _, agent := range e.agents {
		agent := agent
		g.Go(func() error {
			result, err := agent.Analyze(gctx, content, objective)
			if err == nil {
				collector.recordResult(agent.Profile().Name, batch.Files, result)
				return nil
			}
			blog.Warn("agent batch analysis failed",
				"agent", agent.Profile().Name, "error", err)
			if gctx.Err() != nil {
				collector.recordFailure(batch.Files)
				return nil
			}
			e.rescueFiles(gctx, blog, collector, agent, batch, objective)
			return nil
		})
	}
	_ = g.Wait()
}

// rescueFiles retries each file of a failed batch individually. Sequential
// on purpose: the batch already failed once, so this path trades speed for
// gentleness toward the upstream.
func (e *Engine) rescueFiles(ctx context.Context, log *logging.Logger, collector *runCollector, agent core.SpecialistAgent, batch core.Batch, objective string) {
	name := agent.Profile().Name
	for _, file := range batch.Files {
		result, err := agent.Analyze(ctx, e.scheduler.RenderFileContent(file), objective)
		if err != nil {
			log.Warn("single-file fallback failed",
				"agent", name, "file", file.Name, "error", err)
			collector.recordFailure([]core.FileUnit{file})
			continue
		}
		log.Debug("single-file fallback succeeded", "agent", name, "file", file.Name)
		collector.recordResult(name, []core.FileUnit{file}, result)
	}
}

func (e *Engine) agentNames() []string {
	names := make([]string, 0, len(e.agents))
	for _, agent := range e.agents {
		names = append(names, agent.Profile().Name)
	}
	return names
}

// runDigest stands in for the executive summary when synthesis is disabled
// or its call failed.
func runDigest(files []core.FileUnit, results []core.SpecialistResult, entries []core.ConsensusEntry) string {
	return fmt.Sprintf("%d file(s) reviewed by %d specialist(s): %d finding(s) in %d consensus group(s).",
		len(files), len(results), totalFindings(results), len(entries))
}

func totalFindings(results []core.SpecialistResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Findings)
	}
	return n
}

// clipContent truncates at a rune boundary so the discussion context stays
// valid UTF-8.
func clipContent(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[content truncated]"
}

// Coverage ranks for one file; a higher rank wins when agents disagree on
// how well a file was handled.
const (
	coverNone = iota
	coverFailed
	coverOmitted
	coverFallback
	coverClean
)

type summaryCandidate struct {
	rank    int
	summary string
}

// runCollector gathers per-agent results and per-file coverage as batches
// complete. Agent goroutines write concurrently; every input file ends up
// with exactly one assessment no matter how its processing went.
type runCollector struct {
	mu         sync.Mutex
	order      []string
	cover      map[string]int
	candidates map[string][]summaryCandidate
	parts      map[string][]core.SpecialistResult
}

func newRunCollector(files []core.FileUnit) *runCollector {
	order := make([]string, 0, len(files))
	cover := make(map[string]int, len(files))
	for _, f := range files {
		order = append(order, f.Name)
		cover[f.Name] = coverNone
	}
	return &runCollector{
		order:      order,
		cover:      cover,
		candidates: make(map[string][]summaryCandidate),
		parts:      make(map[string][]core.SpecialistResult),
	}
}

// recordResult stores one agent's result for a set of files and upgrades
// each file's coverage. A sectioned reply covers exactly the files it
// addressed; a flat reply speaks for the whole set at once.
func (c *runCollector) recordResult(agent string, files []core.FileUnit, result *core.SpecialistResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.parts[agent] = append(c.parts[agent], *result)

	covered := make(map[string]bool)
	for _, name := range result.CoveredFiles() {
		covered[name] = true
	}
	fallback := make(map[string]bool, len(result.FallbackFiles))
	for _, name := range result.FallbackFiles {
		fallback[name] = true
	}
	sectioned := len(covered) > 0

	for _, f := range files {
		switch {
		case !sectioned:
			rank := coverClean
			if result.Fallback {
				rank = coverFallback
			}
			c.mark(f.Name, rank, result.BusinessImpactText)
		case fallback[f.Name]:
			c.mark(f.Name, coverFallback, result.FileSummaries[f.Name])
		case covered[f.Name]:
			c.mark(f.Name, coverClean, result.FileSummaries[f.Name])
		default:
			c.mark(f.Name, coverOmitted, "")
		}
	}
}

// recordFailure marks files whose analysis produced nothing at all.
func (c *runCollector) recordFailure(files []core.FileUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		c.mark(f.Name, coverFailed, "")
	}
}

func (c *runCollector) mark(file string, rank int, summary string) {
	if rank > c.cover[file] {
		c.cover[file] = rank
	}
	if summary != "" {
		c.candidates[file] = append(c.candidates[file], summaryCandidate{rank: rank, summary: summary})
	}
}

// mergedResults folds each agent's per-batch results into one result per
// agent, in roster order. Agents whose every call failed are absent.
func (c *runCollector) mergedResults(order []string) []core.SpecialistResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]core.SpecialistResult, 0, len(order))
	for _, name := range order {
		parts := c.parts[name]
		if len(parts) == 0 {
			continue
		}
		out = append(out, mergeParts(parts))
	}
	return out
}

func mergeParts(parts []core.SpecialistResult) core.SpecialistResult {
	if len(parts) == 1 {
		return parts[0]
	}

	merged := core.SpecialistResult{
		AgentName:     parts[0].AgentName,
		Specialty:     parts[0].Specialty,
		FileSummaries: make(map[string]string),
		Fallback:      true,
	}
	fallbackFiles := make(map[string]bool)
	var confidence float64
	var impacts []string

	for _, part := range parts {
		merged.Findings = append(merged.Findings, part.Findings...)
		merged.Recommendations = append(merged.Recommendations, part.Recommendations...)
		for name, summary := range part.FileSummaries {
			merged.FileSummaries[name] = summary
		}
		for _, name := range part.FallbackFiles {
			fallbackFiles[name] = true
		}
		confidence += part.ConfidenceScore
		if part.BusinessImpactText != "" {
			impacts = append(impacts, part.BusinessImpactText)
		}
		if !part.Fallback {
			merged.Fallback = false
		}
	}

	for name := range fallbackFiles {
		merged.FallbackFiles = append(merged.FallbackFiles, name)
	}
	sort.Strings(merged.FallbackFiles)
	merged.ConfidenceScore = confidence / float64(len(parts))
	merged.BusinessImpactText = summarizeReply(strings.Join(impacts, " "), 240)
	return merged
}

// assessments renders the final per-file entries, one per input file in
// input order.
func (c *runCollector) assessments(results []core.SpecialistResult) []core.FileAssessment {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]core.FileAssessment, 0, len(c.order))
	for _, name := range c.order {
		var status core.FileStatus
		switch c.cover[name] {
		case coverClean:
			status = core.FileCompleted
		case coverFallback, coverOmitted:
			status = core.FileCompletedFallback
		default:
			status = core.FileFailed
		}

		summary := c.bestSummary(name)
		if summary == "" {
			if status == core.FileFailed {
				summary = "analysis failed; no agent produced a result for this file"
			} else {
				summary = "covered by the batch review without an individual assessment"
			}
		}

		out = append(out, core.FileAssessment{
			File:     name,
			Status:   status,
			Findings: core.FindingsFor(results, name),
			Summary:  summary,
		})
	}
	return out
}

// bestSummary picks deterministically regardless of arrival order: cleanest
// coverage first, then the most substantial text.
func (c *runCollector) bestSummary(file string) string {
	candidates := c.candidates[file]
	if len(candidates) == 0 {
		return ""
	}
	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.rank != best.rank {
			if cand.rank > best.rank {
				best = cand
			}
			continue
		}
		if len(cand.summary) != len(best.summary) {
			if len(cand.summary) > len(best.summary) {
				best = cand
			}
			continue
		}
		if cand.summary < best.summary {
			best = cand
		}
	}
	return best.summary
}
