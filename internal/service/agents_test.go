package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// capturingClient records every request it forwards.
type capturingClient struct {
	inner    core.CompletionClient
	mu       sync.Mutex
	requests []core.CompletionRequest
}

func (c *capturingClient) Name() string { return c.inner.Name() }

func (c *capturingClient) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.inner.Complete(ctx, req)
}

func (c *capturingClient) lastRequest() core.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return core.CompletionRequest{}
	}
	return c.requests[len(c.requests)-1]
}

func securityProfile() core.AgentProfile {
	return core.AgentProfile{
		Name:                "security",
		Specialty:           "security",
		Persona:             "You hunt for credential leaks.",
		ConfidenceThreshold: 0.7,
	}
}

func newTestSpecialist(t *testing.T, profile core.AgentProfile, client core.CompletionClient) *Specialist {
	t.Helper()
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}
	upstream := config.UpstreamConfig{Model: "claude-sonnet-4-20250514", MaxTokens: 1024, Temperature: 0.2}
	return NewSpecialist(profile, client, renderer, upstream, logging.NewNop())
}

const structuredReply = `{
  "summary": "Credential handling is weak across the service layer.",
  "confidence": 0.85,
  "business_impact": "A leaked connection string exposes every customer record.",
  "findings": [
    {"category": "hardcoded-credentials", "severity": "critical", "location": "db.cs:12", "confidence": 0.9, "evidence": "connection string with password literal"},
    {"category": "weak-validation", "severity": "low", "location": "svc.cs:40", "confidence": 0.5, "evidence": "three-character passwords accepted"}
  ],
  "recommendations": [
    {"title": "Move secrets to a vault", "description": "Replace inline credentials with runtime lookup.", "priority": "high", "effort_hours": 6}
  ]
}`

func TestSpecialist_AnalyzeParsesStructuredReply(t *testing.T) {
	agent := newTestSpecialist(t, securityProfile(), newScriptClient("anthropic", scriptReply{text: structuredReply}))

	result, err := agent.Analyze(context.Background(), "var conn = \"Password=x\";", "modernization risk")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Fallback {
		t.Error("structured reply flagged as fallback")
	}
	if result.AgentName != "security" || result.Specialty != "security" {
		t.Errorf("identity = %s/%s", result.AgentName, result.Specialty)
	}
	if result.ConfidenceScore != 0.85 {
		t.Errorf("ConfidenceScore = %v, want 0.85", result.ConfidenceScore)
	}
	if !strings.Contains(result.BusinessImpactText, "customer record") {
		t.Errorf("BusinessImpactText = %q", result.BusinessImpactText)
	}

	// The 0.5-confidence finding sits below the agent's 0.7 threshold.
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %d, want 1 (below-threshold finding dropped)", len(result.Findings))
	}
	finding := result.Findings[0]
	if finding.Severity != core.SeverityCritical || finding.Location != "db.cs:12" {
		t.Errorf("finding = %+v", finding)
	}

	if len(result.Recommendations) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(result.Recommendations))
	}
	if result.Recommendations[0].Priority != core.PriorityHigh {
		t.Errorf("priority = %q, want high", result.Recommendations[0].Priority)
	}
	if result.Recommendations[0].EstimatedEffortHours != 6 {
		t.Errorf("effort = %v, want 6", result.Recommendations[0].EstimatedEffortHours)
	}
}

func TestSpecialist_AnalyzeRecoversFencedReply(t *testing.T) {
	reply := "Here is my assessment:\n\n```json\n" + structuredReply + "\n```\nStay safe."
	agent := newTestSpecialist(t, securityProfile(), newScriptClient("anthropic", scriptReply{text: reply}))

	result, err := agent.Analyze(context.Background(), "code", "objective")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Fallback {
		t.Error("fenced reply should parse, not fall back")
	}
	if len(result.Findings) != 1 {
		t.Errorf("findings = %d, want 1", len(result.Findings))
	}
}

func TestSpecialist_AnalyzeFallsBackOnProse(t *testing.T) {
	prose := "I could not produce the requested format, but this code clearly has a sql injection risk where user input is concatenated into the query, and the hardcoded password is a credential exposure."
	agent := newTestSpecialist(t, securityProfile(), newScriptClient("anthropic", scriptReply{text: prose}))

	result, err := agent.Analyze(context.Background(), "code", "objective")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if !result.Fallback {
		t.Fatal("prose reply should produce a fallback result")
	}
	if result.ConfidenceScore <= 0 || result.ConfidenceScore > 0.4 {
		t.Errorf("fallback confidence = %v, want (0, 0.4]", result.ConfidenceScore)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %d, want 1 coarse finding", len(result.Findings))
	}
	if result.Findings[0].Category != "security-signal" {
		t.Errorf("category = %q", result.Findings[0].Category)
	}
	if !strings.Contains(result.Findings[0].Evidence, "injection") {
		t.Errorf("evidence = %q, want matched signals listed", result.Findings[0].Evidence)
	}
}

func TestSpecialist_AnalyzeComputesStableFingerprint(t *testing.T) {
	capture := &capturingClient{inner: newScriptClient("anthropic", scriptReply{text: structuredReply})}
	agent := newTestSpecialist(t, securityProfile(), capture)

	content, objective := "var x = 1;", "assess risk"
	if _, err := agent.Analyze(context.Background(), content, objective); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	first := capture.lastRequest().Fingerprint

	want := core.Fingerprint("security", "claude-sonnet-4-20250514",
		core.HashContent(content), core.HashContent(objective))
	if first != want {
		t.Errorf("fingerprint = %q, want %q", first, want)
	}

	if _, err := agent.Analyze(context.Background(), content, objective); err != nil {
		t.Fatalf("repeat Analyze() error = %v", err)
	}
	if got := capture.lastRequest().Fingerprint; got != first {
		t.Error("identical inputs produced different fingerprints")
	}

	if _, err := agent.Analyze(context.Background(), content, "different objective"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got := capture.lastRequest().Fingerprint; got == first {
		t.Error("different objective produced the same fingerprint")
	}
}

func TestSpecialist_AnalyzePropagatesUpstreamError(t *testing.T) {
	agent := newTestSpecialist(t, securityProfile(),
		newScriptClient("anthropic", scriptReply{err: core.ErrUpstreamFatal(core.CodeUpstreamAuth, "401")}))

	if _, err := agent.Analyze(context.Background(), "code", "objective"); !core.IsCategory(err, core.ErrCatUpstream) {
		t.Errorf("Analyze() error = %v, want upstream error", err)
	}
}

func TestSpecialist_ReviewPeer(t *testing.T) {
	capture := &capturingClient{inner: newScriptClient("anthropic", scriptReply{text: "  I corroborate the credential finding; the nested loop is out of my lane.  "})}
	agent := newTestSpecialist(t, securityProfile(), capture)

	peer := &core.SpecialistResult{
		AgentName:       "performance",
		Specialty:       "performance",
		ConfidenceScore: 0.8,
		Findings: []core.SpecialistFinding{
			{Category: "nested-loop", Severity: core.SeverityHigh, Location: "svc.cs:97", Confidence: 0.8, Evidence: "O(n^2) scan"},
		},
	}

	critique, err := agent.ReviewPeer(context.Background(), peer, "for-loop body")
	if err != nil {
		t.Fatalf("ReviewPeer() error = %v", err)
	}
	if strings.HasPrefix(critique, " ") || strings.HasSuffix(critique, " ") {
		t.Error("critique not trimmed")
	}

	prompt := capture.lastRequest().UserPrompt
	if !strings.Contains(prompt, "performance") {
		t.Error("prompt should name the author")
	}
	if !strings.Contains(prompt, "svc.cs:97") {
		t.Error("prompt should carry the author's findings")
	}
	if !strings.Contains(prompt, "HIGH") {
		t.Error("prompt should show the severity")
	}
}

func TestHeuristicResult_UnknownSpecialtyUsesGenericSignals(t *testing.T) {
	profile := core.AgentProfile{Name: "compliance", Specialty: "compliance"}
	result := heuristicResult(profile, "There is a regulatory risk and a data handling concern here.")

	if !result.Fallback {
		t.Error("heuristic result must be flagged fallback")
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(result.Findings))
	}
	if result.Findings[0].Category != "compliance-signal" {
		t.Errorf("category = %q", result.Findings[0].Category)
	}
}

func TestHeuristicResult_NoSignals(t *testing.T) {
	result := heuristicResult(securityProfile(), "ok")
	if len(result.Findings) != 0 {
		t.Errorf("findings = %d, want none for a contentless reply", len(result.Findings))
	}
	if !result.Fallback {
		t.Error("still a fallback result")
	}
}

func TestSummarizeReply(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := summarizeReply(long, 40)
	if len(got) > 45 {
		t.Errorf("summary length = %d, want near limit", len(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("summary = %q, want ellipsis suffix", got)
	}

	if got := summarizeReply("short reply", 40); got != "short reply" {
		t.Errorf("short reply altered: %q", got)
	}
}

const sectionedReply = "Reviewing each file in turn.\n\n" +
	"### auth/login.cs\n" +
	`{"summary": "Login concatenates SQL.", "confidence": 0.9,
	  "findings": [
	    {"category": "sql-injection", "severity": "critical", "location": "auth/login.cs:12", "confidence": 0.95, "evidence": "string-built query"},
	    {"category": "log-noise", "severity": "low", "confidence": 0.5, "evidence": "query text logged verbatim"}
	  ],
	  "recommendations": [
	    {"title": "Parameterize queries", "description": "Use prepared statements.", "priority": "high", "effort_hours": 4}
	  ]}` + "\n\n" +
	"### `auth/token.cs`\n" +
	"```json\n" +
	`{"summary": "Token TTL is generous but sane.", "confidence": 0.7,
	  "findings": [
	    {"category": "weak-validation", "severity": "medium", "confidence": 0.8, "evidence": "no audience check"}
	  ]}` + "\n" +
	"```\n\n" +
	"### overall\n" +
	`{"summary": "Authentication layer needs hardening.", "confidence": 0.82, "business_impact": "An attacker can mint sessions for any tenant."}` + "\n"

func TestSpecialist_AnalyzeParsesSectionedReply(t *testing.T) {
	agent := newTestSpecialist(t, securityProfile(), newScriptClient("anthropic", scriptReply{text: sectionedReply}))

	result, err := agent.Analyze(context.Background(), "batch content", "modernization risk")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Fallback {
		t.Error("sectioned reply flagged as fallback")
	}
	if len(result.FallbackFiles) != 0 {
		t.Errorf("FallbackFiles = %v, want none", result.FallbackFiles)
	}
	if result.ConfidenceScore != 0.82 {
		t.Errorf("ConfidenceScore = %v, want overall 0.82", result.ConfidenceScore)
	}
	if !strings.Contains(result.BusinessImpactText, "any tenant") {
		t.Errorf("BusinessImpactText = %q, want the overall impact", result.BusinessImpactText)
	}

	// One finding per file survives; login's 0.5-confidence finding sits
	// below the agent threshold.
	if len(result.Findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(result.Findings))
	}
	byCategory := map[string]core.SpecialistFinding{}
	for _, f := range result.Findings {
		byCategory[f.Category] = f
	}
	if got := byCategory["sql-injection"].Location; got != "auth/login.cs:12" {
		t.Errorf("sql-injection location = %q, want the reported one kept", got)
	}
	if got := byCategory["weak-validation"].Location; got != "auth/token.cs" {
		t.Errorf("weak-validation location = %q, want tagged with its section file", got)
	}

	if got := result.FileSummaries["auth/login.cs"]; got != "Login concatenates SQL." {
		t.Errorf("login summary = %q", got)
	}
	if got := result.FileSummaries["auth/token.cs"]; got != "Token TTL is generous but sane." {
		t.Errorf("token summary = %q (backticked header should still name the file)", got)
	}
	if got := result.CoveredFiles(); len(got) != 2 || got[0] != "auth/login.cs" || got[1] != "auth/token.cs" {
		t.Errorf("CoveredFiles() = %v", got)
	}
	if len(result.Recommendations) != 1 {
		t.Errorf("recommendations = %d, want 1", len(result.Recommendations))
	}
}

func TestSpecialist_AnalyzeSectionFallback(t *testing.T) {
	reply := "### auth/login.cs\n" +
		`{"summary": "Login concatenates SQL.", "confidence": 0.9,
		  "findings": [{"category": "sql-injection", "severity": "critical", "location": "auth/login.cs:12", "confidence": 0.95, "evidence": "string-built query"}]}` + "\n" +
		"### auth/token.cs\n" +
		"Half the reply got eaten; there is an injection concern in this file but no structure survived.\n"
	agent := newTestSpecialist(t, securityProfile(), newScriptClient("anthropic", scriptReply{text: reply}))

	result, err := agent.Analyze(context.Background(), "batch content", "objective")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Fallback {
		t.Error("one clean section should keep the result off full fallback")
	}
	if len(result.FallbackFiles) != 1 || result.FallbackFiles[0] != "auth/token.cs" {
		t.Fatalf("FallbackFiles = %v, want only the garbled file", result.FallbackFiles)
	}

	byCategory := map[string]core.SpecialistFinding{}
	for _, f := range result.Findings {
		byCategory[f.Category] = f
	}
	if _, ok := byCategory["sql-injection"]; !ok {
		t.Error("clean section's finding missing")
	}
	heuristic, ok := byCategory["security-signal"]
	if !ok {
		t.Fatal("garbled section should contribute a heuristic finding")
	}
	if heuristic.Location != "auth/token.cs" {
		t.Errorf("heuristic location = %q, want the section's file", heuristic.Location)
	}

	if result.FileSummaries["auth/token.cs"] == "" {
		t.Error("garbled file should still get a summary")
	}
	if got := result.ConfidenceScore; got <= 0 || got >= 0.9 {
		t.Errorf("ConfidenceScore = %v, want mean pulled below the clean section's 0.9", got)
	}
	if got := result.CoveredFiles(); len(got) != 2 {
		t.Errorf("CoveredFiles() = %v, want both files covered", got)
	}
}

func TestSpecialist_AnalyzeAllSectionsGarbage(t *testing.T) {
	reply := "### b.cs\nNothing useful here.\n### a.cs\nStill nothing parseable.\n"
	agent := newTestSpecialist(t, securityProfile(), newScriptClient("anthropic", scriptReply{text: reply}))

	result, err := agent.Analyze(context.Background(), "batch content", "objective")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !result.Fallback {
		t.Error("every section garbled should flag the result as fallback")
	}
	if len(result.FallbackFiles) != 2 || result.FallbackFiles[0] != "a.cs" || result.FallbackFiles[1] != "b.cs" {
		t.Errorf("FallbackFiles = %v, want both files sorted", result.FallbackFiles)
	}
}

func TestSplitReplySections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []replySection
	}{
		{
			name: "preamble ignored",
			raw:  "Let me walk through these.\n### a.cs\nbody a\n### b.cs\nbody b\n",
			want: []replySection{{name: "a.cs", body: "body a"}, {name: "b.cs", body: "body b"}},
		},
		{
			name: "decorated headers",
			raw:  "### `svc.cs`\nx\n### **db.cs**\ny\n",
			want: []replySection{{name: "svc.cs", body: "x"}, {name: "db.cs", body: "y"}},
		},
		{
			name: "no headers",
			raw:  "just a plain reply with no sections",
			want: nil,
		},
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitReplySections(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("sections = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("section[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
