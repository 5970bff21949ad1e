package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// ConsensusCalculator measures how strongly the specialist roster agrees on
// each reported finding. Agreement is confidence-weighted: an agent that was
// sure of its overall analysis counts for more than one that was guessing.
type ConsensusCalculator struct {
	highThreshold     float64
	moderateThreshold float64
}

// NewConsensusCalculator creates a calculator with the configured tier
// thresholds, falling back to 0.8/0.5 when unset or inconsistent.
func NewConsensusCalculator(cfg config.ConsensusConfig) *ConsensusCalculator {
	high := cfg.HighThreshold
	if high <= 0 || high > 1 {
		high = 0.8
	}
	moderate := cfg.ModerateThreshold
	if moderate <= 0 || moderate >= high {
		moderate = 0.5
	}
	return &ConsensusCalculator{
		highThreshold:     high,
		moderateThreshold: moderate,
	}
}

type findingGroup struct {
	category string
	location string
	severity core.Severity
	// agent name -> that agent's run confidence; an agent reporting the
	// same key twice still counts once.
	reporters map[string]float64
}

// Evaluate computes one ConsensusEntry per normalized finding key across all
// agent results. The outcome is identical no matter what order the results
// are supplied in.
func (c *ConsensusCalculator) Evaluate(results []core.SpecialistResult) []core.ConsensusEntry {
	if len(results) == 0 {
		return nil
	}

	totalConfidence := 0.0
	for _, r := range results {
		totalConfidence += r.ConfidenceScore
	}

	groups := make(map[string]*findingGroup)
	for _, r := range results {
		for _, f := range r.Findings {
			key := NormalizeFindingKey(f.Category, f.Location)
			g := groups[key]
			if g == nil {
				g = &findingGroup{
					category:  normalizeLabel(f.Category),
					location:  wildcardLines(strings.ToLower(strings.TrimSpace(f.Location))),
					severity:  f.Severity,
					reporters: make(map[string]float64),
				}
				groups[key] = g
			}
			if f.Severity.Rank() > g.severity.Rank() {
				g.severity = f.Severity
			}
			g.reporters[r.AgentName] = r.ConfidenceScore
		}
	}

	entries := make([]core.ConsensusEntry, 0, len(groups))
	for key, g := range groups {
		reporting := 0.0
		agents := make([]string, 0, len(g.reporters))
		for name, conf := range g.reporters {
			reporting += conf
			agents = append(agents, name)
		}
		sort.Strings(agents)

		ratio := float64(len(agents)) / float64(len(results))
		weighted := ratio
		if totalConfidence > 0 {
			weighted = reporting / totalConfidence
		}

		entries = append(entries, core.ConsensusEntry{
			FindingKey:         key,
			Category:           g.category,
			Location:           g.location,
			Severity:           g.severity,
			ReportingAgents:    agents,
			AgreementRatio:     ratio,
			WeightedConfidence: weighted,
			Tier:               c.tierFor(ratio, weighted),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].WeightedConfidence != entries[j].WeightedConfidence {
			return entries[i].WeightedConfidence > entries[j].WeightedConfidence
		}
		return entries[i].FindingKey < entries[j].FindingKey
	})
	return entries
}

// tierFor buckets one entry. Unanimous agreement is fully consistent
// regardless of the weighting; below that the weighted share decides.
func (c *ConsensusCalculator) tierFor(ratio, weighted float64) core.ConsensusTier {
	switch {
	case ratio >= 1.0:
		return core.TierFullyConsistent
	case weighted >= c.highThreshold:
		return core.TierHighlyConsistent
	case weighted >= c.moderateThreshold:
		return core.TierModeratelyConsistent
	default:
		return core.TierLowConsistency
	}
}

var lineNumberPattern = regexp.MustCompile(`:\d+(?:[-:]\d+)*`)

// NormalizeFindingKey builds the identity two findings must share to count
// as the same issue: category plus location, case-insensitive, with line
// numbers wildcarded so "db.cs:12" and "db.cs:15" collide.
func NormalizeFindingKey(category, location string) string {
	return normalizeLabel(category) + "|" + wildcardLines(strings.ToLower(strings.TrimSpace(location)))
}

// wildcardLines replaces trailing line/column references with "*".
func wildcardLines(location string) string {
	return lineNumberPattern.ReplaceAllString(location, ":*")
}

// normalizeLabel lowercases and collapses whitespace so label variants
// compare equal.
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
