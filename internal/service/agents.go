package service

import (
	"context"
	"sort"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

const defaultMaxFindings = 10

// Specialist is one review persona bound to an upstream client chain. It
// implements core.SpecialistAgent; all resilience (cache, rate limit, retry,
// breaker) lives in the client it was given.
type Specialist struct {
	profile     core.AgentProfile
	client      core.CompletionClient
	prompts     *PromptRenderer
	logger      *logging.Logger
	model       string
	maxTokens   int
	temperature float64
	maxFindings int
}

// NewSpecialist creates an agent from a profile and its client chain.
func NewSpecialist(profile core.AgentProfile, client core.CompletionClient, prompts *PromptRenderer, upstream config.UpstreamConfig, logger *logging.Logger) *Specialist {
	maxTokens := upstream.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Specialist{
		profile:     profile,
		client:      client,
		prompts:     prompts,
		logger:      logger.WithAgent(profile.Name),
		model:       upstream.Model,
		maxTokens:   maxTokens,
		temperature: upstream.Temperature,
		maxFindings: defaultMaxFindings,
	}
}

// Profile returns the agent's static identity.
func (s *Specialist) Profile() core.AgentProfile { return s.profile }

// Analyze reviews content against an objective. Upstream failures propagate;
// unparseable replies degrade to a heuristic result instead of failing.
func (s *Specialist) Analyze(ctx context.Context, content, objective string) (*core.SpecialistResult, error) {
	system, err := s.prompts.RenderSystem(SystemParams{Agent: s.profile})
	if err != nil {
		return nil, core.ErrInternal("rendering system prompt").WithCause(err)
	}
	user, err := s.prompts.RenderAnalyze(AnalyzeParams{
		Agent:       s.profile,
		Objective:   objective,
		Content:     content,
		MaxFindings: s.maxFindings,
	})
	if err != nil {
		return nil, core.ErrInternal("rendering analyze prompt").WithCause(err)
	}

	req := core.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        s.model,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
		Fingerprint: core.Fingerprint(s.profile.Name, s.model,
			core.HashContent(content), core.HashContent(objective)),
	}

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.parseAnalysisReply(resp.Text), nil
}

// parseAnalysisReply turns the raw reply into a SpecialistResult. Replies
// follow the per-file section contract; each section parses independently,
// so one garbled file degrades to heuristics without dragging down its
// siblings. Replies without sections are parsed as a single payload.
func (s *Specialist) parseAnalysisReply(raw string) *core.SpecialistResult {
	sections := splitReplySections(raw)
	if len(sections) == 0 {
		var payload analysisPayload
		strategy := ExtractStructured(raw, &payload)
		if strategy == ParseNone {
			s.logger.Warn("reply not parseable, falling back to heuristics",
				"reply_bytes", len(raw))
			return heuristicResult(s.profile, raw)
		}
		if strategy != ParseDirect {
			s.logger.Debug("reply needed recovery parsing", "strategy", string(strategy))
		}
		return payload.toResult(s.profile)
	}

	result := &core.SpecialistResult{
		AgentName:     s.profile.Name,
		Specialty:     s.profile.Specialty,
		FileSummaries: make(map[string]string, len(sections)),
	}
	var confidences []float64
	var overall *analysisPayload
	fileSections := 0

	for _, sec := range sections {
		if strings.EqualFold(sec.name, "overall") {
			var p analysisPayload
			if ExtractStructured(sec.body, &p) != ParseNone {
				overall = &p
			}
			continue
		}

		fileSections++
		var p analysisPayload
		strategy := ExtractStructured(sec.body, &p)
		if strategy == ParseNone {
			s.logger.Warn("file section not parseable, falling back to heuristics",
				"file", sec.name, "section_bytes", len(sec.body))
			fb := heuristicResult(s.profile, sec.body)
			for i := range fb.Findings {
				fb.Findings[i].Location = sec.name
			}
			result.Findings = append(result.Findings, fb.Findings...)
			result.FallbackFiles = append(result.FallbackFiles, sec.name)
			result.FileSummaries[sec.name] = fb.BusinessImpactText
			confidences = append(confidences, fb.ConfidenceScore)
			continue
		}

		findings := p.convertFindings(s.profile)
		for i := range findings {
			if findings[i].Location == "" {
				findings[i].Location = sec.name
			}
		}
		result.Findings = append(result.Findings, findings...)
		result.Recommendations = append(result.Recommendations, p.convertRecommendations()...)
		result.FileSummaries[sec.name] = strings.TrimSpace(p.Summary)
		confidences = append(confidences, clamp01(p.Confidence))
	}
	sort.Strings(result.FallbackFiles)
	result.Fallback = fileSections > 0 && len(result.FallbackFiles) == fileSections

	if overall != nil {
		result.ConfidenceScore = clamp01(overall.Confidence)
		result.BusinessImpactText = strings.TrimSpace(overall.BusinessImpact)
		if result.BusinessImpactText == "" {
			result.BusinessImpactText = strings.TrimSpace(overall.Summary)
		}
	}
	if result.ConfidenceScore == 0 {
		result.ConfidenceScore = meanOf(confidences)
	}
	if result.BusinessImpactText == "" {
		result.BusinessImpactText = summarizeReply(joinFileSummaries(result.FileSummaries), 240)
	}
	return result
}

// replySection is one "### name" block of a sectioned reply.
type replySection struct {
	name string
	body string
}

// splitReplySections splits a reply on "### " headers. Text before the first
// header is ignored; a reply without headers yields nil.
func splitReplySections(raw string) []replySection {
	var sections []replySection
	var current *replySection
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.body = strings.TrimSpace(body.String())
			sections = append(sections, *current)
			body.Reset()
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "### ") {
			flush()
			name := strings.Trim(strings.TrimPrefix(trimmed, "### "), "`* ")
			current = &replySection{name: name}
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()
	return sections
}

func joinFileSummaries(summaries map[string]string) string {
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if summaries[name] != "" {
			parts = append(parts, summaries[name])
		}
	}
	return strings.Join(parts, " ")
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ReviewPeer critiques another agent's result in light of the same content.
func (s *Specialist) ReviewPeer(ctx context.Context, peer *core.SpecialistResult, content string) (string, error) {
	system, err := s.prompts.RenderSystem(SystemParams{Agent: s.profile})
	if err != nil {
		return "", core.ErrInternal("rendering system prompt").WithCause(err)
	}
	user, err := s.prompts.RenderPeerReview(PeerReviewParams{
		Reviewer:         s.profile,
		AuthorName:       peer.AgentName,
		AuthorSpecialty:  peer.Specialty,
		AuthorSummary:    peer.BusinessImpactText,
		AuthorConfidence: peer.ConfidenceScore,
		Findings:         peer.Findings,
		Content:          content,
	})
	if err != nil {
		return "", core.ErrInternal("rendering peer review prompt").WithCause(err)
	}

	resp, err := s.client.Complete(ctx, core.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        s.model,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// analysisPayload is the wire shape agents are instructed to reply with.
type analysisPayload struct {
	Summary         string                  `json:"summary"`
	Confidence      float64                 `json:"confidence"`
	BusinessImpact  string                  `json:"business_impact"`
	Findings        []findingPayload        `json:"findings"`
	Recommendations []recommendationPayload `json:"recommendations"`
}

type findingPayload struct {
	Category   string  `json:"category"`
	Severity   string  `json:"severity"`
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

type recommendationPayload struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	EffortHours float64 `json:"effort_hours"`
}

// convertFindings normalizes severities, clamps confidences, and drops
// findings below the agent's confidence threshold.
func (p *analysisPayload) convertFindings(profile core.AgentProfile) []core.SpecialistFinding {
	findings := make([]core.SpecialistFinding, 0, len(p.Findings))
	for _, f := range p.Findings {
		confidence := clamp01(f.Confidence)
		if confidence < profile.ConfidenceThreshold {
			continue
		}
		findings = append(findings, core.SpecialistFinding{
			Category:   strings.TrimSpace(f.Category),
			Severity:   core.ParseSeverity(f.Severity),
			Location:   strings.TrimSpace(f.Location),
			Confidence: confidence,
			Evidence:   strings.TrimSpace(f.Evidence),
		})
	}
	return findings
}

func (p *analysisPayload) convertRecommendations() []core.Recommendation {
	recommendations := make([]core.Recommendation, 0, len(p.Recommendations))
	for _, r := range p.Recommendations {
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		priority := core.PriorityMedium
		if strings.EqualFold(strings.TrimSpace(r.Priority), "high") {
			priority = core.PriorityHigh
		}
		effort := r.EffortHours
		if effort < 0 {
			effort = 0
		}
		recommendations = append(recommendations, core.Recommendation{
			Title:                strings.TrimSpace(r.Title),
			Description:          strings.TrimSpace(r.Description),
			Priority:             priority,
			EstimatedEffortHours: effort,
		})
	}
	return recommendations
}

// toResult converts an unsectioned payload into a SpecialistResult.
func (p *analysisPayload) toResult(profile core.AgentProfile) *core.SpecialistResult {
	findings := p.convertFindings(profile)

	confidence := clamp01(p.Confidence)
	if confidence == 0 && len(findings) > 0 {
		confidence = meanFindingConfidence(findings)
	}

	impact := strings.TrimSpace(p.BusinessImpact)
	if impact == "" {
		impact = strings.TrimSpace(p.Summary)
	}

	return &core.SpecialistResult{
		AgentName:          profile.Name,
		Specialty:          profile.Specialty,
		Findings:           findings,
		ConfidenceScore:    confidence,
		BusinessImpactText: impact,
		Recommendations:    p.convertRecommendations(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanFindingConfidence(findings []core.SpecialistFinding) float64 {
	if len(findings) == 0 {
		return 0
	}
	var sum float64
	for _, f := range findings {
		sum += f.Confidence
	}
	return sum / float64(len(findings))
}
