package service

import (
	"strings"
	"testing"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

func TestPromptRenderer_Load(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	expected := []string{"system-specialist", "analyze", "peer-review", "synthesize"}
	for _, name := range expected {
		if !renderer.HasTemplate(name) {
			t.Errorf("expected template %q not found", name)
		}
	}
}

func TestPromptRenderer_ListPromptsOrderedByStage(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	metas := renderer.ListPrompts()
	if len(metas) != 4 {
		t.Fatalf("ListPrompts() returned %d templates, want 4", len(metas))
	}
	if metas[0].Stage != "system" {
		t.Errorf("first stage = %q, want system", metas[0].Stage)
	}
	if metas[len(metas)-1].Stage != "synthesize" {
		t.Errorf("last stage = %q, want synthesize", metas[len(metas)-1].Stage)
	}

	meta, ok := renderer.Meta("analyze")
	if !ok {
		t.Fatal("Meta(analyze) not found")
	}
	if meta.Output != "json" {
		t.Errorf("analyze output = %q, want json", meta.Output)
	}
}

func TestPromptRenderer_RenderSystem(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	result, err := renderer.RenderSystem(SystemParams{
		Agent: core.AgentProfile{
			Name:      "security",
			Specialty: "security",
			Persona:   "You hunt for injection flaws and credential leaks before anything else.",
		},
	})
	if err != nil {
		t.Fatalf("RenderSystem() error = %v", err)
	}

	if !strings.Contains(result, "security specialist") {
		t.Error("result should introduce the specialty")
	}
	if !strings.Contains(result, "injection flaws") {
		t.Error("result should contain the persona text")
	}
	if !strings.Contains(result, "JSON only") {
		t.Error("result should contain the output contract")
	}
}

func TestPromptRenderer_RenderAnalyze(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	params := AnalyzeParams{
		Agent:       core.AgentProfile{Name: "performance", Specialty: "performance"},
		Objective:   "Assess modernization risk",
		Content:     "## billing/invoice.cs (csharp)\n\npublic DataSet GetInvoices(string customerId) { /* ... */ }",
		MaxFindings: 8,
	}

	result, err := renderer.RenderAnalyze(params)
	if err != nil {
		t.Fatalf("RenderAnalyze() error = %v", err)
	}

	if !strings.Contains(result, "Assess modernization risk") {
		t.Error("result should contain the objective")
	}
	if !strings.Contains(result, "GetInvoices") {
		t.Error("result should embed the batch content")
	}
	if !strings.Contains(result, "performance specialist") {
		t.Error("result should name the specialty")
	}
	if !strings.Contains(result, "at most 8 findings") {
		t.Error("result should carry the findings cap")
	}
	for _, key := range []string{`"summary"`, `"findings"`, `"severity"`, `"recommendations"`, `"effort_hours"`} {
		if !strings.Contains(result, key) {
			t.Errorf("result should describe the %s field of the reply contract", key)
		}
	}
}

func TestPromptRenderer_RenderPeerReview(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	params := PeerReviewParams{
		Reviewer:         core.AgentProfile{Name: "architecture", Specialty: "architecture"},
		AuthorName:       "security",
		AuthorSpecialty:  "security",
		AuthorSummary:    "Credential handling is the dominant risk.",
		AuthorConfidence: 0.82,
		Objective:        "Assess modernization risk",
		Content:          "## db.cs\n\nvar conn = \"Server=prod;Password=hunter2\";",
		Findings: []core.SpecialistFinding{
			{Category: "hardcoded-credentials", Severity: core.SeverityCritical, Location: "db.cs:12", Confidence: 0.9, Evidence: "connection string with password"},
		},
	}

	result, err := renderer.RenderPeerReview(params)
	if err != nil {
		t.Fatalf("RenderPeerReview() error = %v", err)
	}

	if !strings.Contains(result, "architecture") || !strings.Contains(result, "security") {
		t.Error("result should name both council members")
	}
	if !strings.Contains(result, "CRITICAL") {
		t.Error("result should upper-case the severity")
	}
	if !strings.Contains(result, "db.cs:12") {
		t.Error("result should carry finding locations")
	}
	if !strings.Contains(result, "Password=hunter2") {
		t.Error("result should embed the code under review")
	}
	if !strings.Contains(result, "0.82") {
		t.Error("result should show the author's confidence")
	}
}

func TestPromptRenderer_RenderPeerReviewWithoutFindings(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	result, err := renderer.RenderPeerReview(PeerReviewParams{
		Reviewer:        core.AgentProfile{Name: "performance", Specialty: "performance"},
		AuthorName:      "architecture",
		AuthorSpecialty: "architecture",
	})
	if err != nil {
		t.Fatalf("RenderPeerReview() error = %v", err)
	}
	if !strings.Contains(result, "no findings") {
		t.Error("result should state the author reported nothing")
	}
}

func TestPromptRenderer_RenderSynthesis(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}

	params := SynthesisParams{
		Objective:  "Assess modernization risk",
		FileCount:  3,
		AgentNames: []string{"security", "performance"},
		Entries: []TranscriptEntry{
			{From: "security", Type: "analysis", Content: "Found credential leaks."},
			{From: "performance", To: "security", Type: "peer_review", Content: "Agreed, and the query loop compounds it."},
		},
	}

	result, err := renderer.RenderSynthesis(params)
	if err != nil {
		t.Fatalf("RenderSynthesis() error = %v", err)
	}

	if !strings.Contains(result, "security, performance") {
		t.Error("result should join participant names")
	}
	if !strings.Contains(result, "performance -> security") {
		t.Error("result should show message direction")
	}
	if !strings.Contains(result, "credential leaks") {
		t.Error("result should include transcript content")
	}
}

func TestPromptRenderer_UnknownTemplate(t *testing.T) {
	renderer, err := NewPromptRenderer()
	if err != nil {
		t.Fatalf("NewPromptRenderer() error = %v", err)
	}
	if _, err := renderer.Render("no-such-prompt", nil); err == nil {
		t.Error("Render() with unknown template should fail")
	}
}
