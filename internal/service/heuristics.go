package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// specialtySignals maps a specialty to the phrases whose presence in a
// free-text reply still carries signal when structured extraction failed.
var specialtySignals = map[string][]string{
	"security": {
		"injection", "credential", "password", "hardcoded", "plaintext",
		"secret", "vulnerab", "auth", "unsanitized", "xss", "csrf",
	},
	"performance": {
		"n+1", "nested loop", "pagination", "unbounded", "memory", "leak",
		"slow", "latency", "quadratic", "blocking", "timeout",
	},
	"architecture": {
		"coupling", "global state", "layering", "god object", "monolith",
		"separation", "duplicat", "dependency", "circular", "cohesion",
	},
}

var genericSignals = []string{"issue", "risk", "problem", "concern", "recommend"}

// heuristicResult derives a coarse SpecialistResult from an unparseable
// reply so the pipeline keeps moving. Confidence stays deliberately low;
// downstream consensus weighting discounts it naturally.
func heuristicResult(profile core.AgentProfile, responseText string) *core.SpecialistResult {
	lower := strings.ToLower(responseText)

	signals := specialtySignals[profile.Specialty]
	if len(signals) == 0 {
		signals = genericSignals
	}

	var matched []string
	for _, signal := range signals {
		if strings.Contains(lower, signal) {
			matched = append(matched, signal)
		}
	}
	sort.Strings(matched)

	confidence := heuristicConfidence(responseText, len(matched))

	var findings []core.SpecialistFinding
	if len(matched) > 0 {
		findings = append(findings, core.SpecialistFinding{
			Category:   profile.Specialty + "-signal",
			Severity:   core.SeverityMedium,
			Location:   "",
			Confidence: confidence,
			Evidence: fmt.Sprintf("unstructured reply mentions: %s",
				strings.Join(matched, ", ")),
		})
	}

	return &core.SpecialistResult{
		AgentName:          profile.Name,
		Specialty:          profile.Specialty,
		Findings:           findings,
		ConfidenceScore:    confidence,
		BusinessImpactText: summarizeReply(responseText, 240),
		Fallback:           true,
	}
}

// heuristicConfidence scores how much a raw reply is worth: longer replies
// with more specialty phrases earn slightly more trust, capped well below
// a parsed result.
func heuristicConfidence(responseText string, matches int) float64 {
	confidence := 0.15
	switch {
	case len(responseText) >= 400:
		confidence = 0.3
	case len(responseText) >= 80:
		confidence = 0.25
	}
	confidence += 0.05 * float64(matches)
	if confidence > 0.4 {
		confidence = 0.4
	}
	return confidence
}

// summarizeReply trims a free-text reply to a short single-line summary.
func summarizeReply(responseText string, limit int) string {
	text := strings.Join(strings.Fields(responseText), " ")
	if len(text) <= limit {
		return text
	}
	cut := strings.LastIndex(text[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return text[:cut] + "…"
}
