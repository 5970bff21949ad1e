package service

import (
	"sort"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// defaultSeverityWeights rank recommendations when no weights are configured.
var defaultSeverityWeights = map[string]float64{
	"critical": 10,
	"high":     5,
	"medium":   2,
	"low":      1,
}

// RecommendationSynthesizer merges every agent's recommendations into one
// ranked, capped set. Duplicate titles collapse into a single entry whose
// score reflects how much of the roster's confidence backs it.
type RecommendationSynthesizer struct {
	maxRecommendations int
	highScoreThreshold float64
	weights            map[string]float64
	logger             *logging.Logger
}

// NewRecommendationSynthesizer creates a synthesizer from configuration.
func NewRecommendationSynthesizer(cfg config.RecommendationConfig, logger *logging.Logger) *RecommendationSynthesizer {
	limit := cfg.MaxRecommendations
	if limit < 1 {
		limit = 10
	}
	threshold := cfg.HighScoreThreshold
	if threshold <= 0 {
		threshold = 3.0
	}
	weights := cfg.SeverityWeights
	if len(weights) == 0 {
		weights = defaultSeverityWeights
	}
	return &RecommendationSynthesizer{
		maxRecommendations: limit,
		highScoreThreshold: threshold,
		weights:            weights,
		logger:             logger,
	}
}

// proposal is one agent's filing of a recommendation.
type proposal struct {
	agent          string
	confidence     float64
	recommendation core.Recommendation
}

// Synthesize merges, deduplicates, ranks, and caps recommendations from all
// agent results. TotalEffortHours covers the deduplicated set before the cap
// is applied, so truncation never hides work from the effort estimate.
func (s *RecommendationSynthesizer) Synthesize(results []core.SpecialistResult) core.RecommendationSet {
	totalConfidence := 0.0
	for _, r := range results {
		totalConfidence += r.ConfidenceScore
	}

	groups := make(map[string][]proposal)
	for _, r := range results {
		for _, rec := range r.Recommendations {
			title := normalizeLabel(rec.Title)
			if title == "" {
				continue
			}
			groups[title] = append(groups[title], proposal{
				agent:          r.AgentName,
				confidence:     r.ConfidenceScore,
				recommendation: rec,
			})
		}
	}
	if len(groups) == 0 {
		return core.RecommendationSet{}
	}

	merged := make([]core.Recommendation, 0, len(groups))
	totalEffort := 0.0
	for _, proposals := range groups {
		rec := s.merge(proposals, len(results), totalConfidence)
		totalEffort += rec.EstimatedEffortHours
		merged = append(merged, rec)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Title < merged[j].Title
	})

	if len(merged) > s.maxRecommendations {
		s.logger.Debug("recommendation list truncated",
			"merged", len(merged), "cap", s.maxRecommendations)
		merged = merged[:s.maxRecommendations]
	}

	set := core.RecommendationSet{TotalEffortHours: totalEffort}
	for _, rec := range merged {
		if rec.Priority == core.PriorityHigh || rec.Score >= s.highScoreThreshold {
			rec.Priority = core.PriorityHigh
			set.High = append(set.High, rec)
		} else {
			set.Medium = append(set.Medium, rec)
		}
	}
	return set
}

// merge collapses duplicate filings of one recommendation. The longest
// description wins, effort takes the most pessimistic estimate, and the
// score weighs the proposal's priority by the share of roster confidence
// behind it.
func (s *RecommendationSynthesizer) merge(proposals []proposal, agentCount int, totalConfidence float64) core.Recommendation {
	sort.Slice(proposals, func(i, j int) bool {
		if len(proposals[i].recommendation.Description) != len(proposals[j].recommendation.Description) {
			return len(proposals[i].recommendation.Description) > len(proposals[j].recommendation.Description)
		}
		return proposals[i].agent < proposals[j].agent
	})
	out := proposals[0].recommendation

	proposers := make(map[string]float64)
	high, medium := 0, 0
	for _, p := range proposals {
		proposers[p.agent] = p.confidence
		if p.recommendation.Priority == core.PriorityHigh {
			high++
		} else {
			medium++
		}
		if p.recommendation.EstimatedEffortHours > out.EstimatedEffortHours {
			out.EstimatedEffortHours = p.recommendation.EstimatedEffortHours
		}
	}

	// Majority decides a disputed priority; a tie escalates to high.
	if medium > high {
		out.Priority = core.PriorityMedium
	} else if high > 0 {
		out.Priority = core.PriorityHigh
	}

	backing := 0.0
	for _, conf := range proposers {
		backing += conf
	}
	weighted := float64(len(proposers)) / float64(agentCount)
	if totalConfidence > 0 {
		weighted = backing / totalConfidence
	}

	out.Score = s.weightFor(out.Priority) * weighted
	return out
}

func (s *RecommendationSynthesizer) weightFor(priority core.Priority) float64 {
	if w, ok := s.weights[strings.ToLower(string(priority))]; ok {
		return w
	}
	return 1
}
