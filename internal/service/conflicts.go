package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// ConflictResolver reconciles agent disagreements: the same finding rated at
// materially different severities, or the same recommendation filed at
// different priorities. Majority vote decides; ties fall to the configured
// precedence order; with no precedence match the more severe rating stands.
type ConflictResolver struct {
	precedence  map[string]int
	severityGap int
	logger      *logging.Logger
}

// NewConflictResolver creates a resolver from configuration. An unset
// severity gap defaults to 2 ranks (medium vs critical is material, high vs
// critical is not).
func NewConflictResolver(cfg config.ConflictConfig, logger *logging.Logger) *ConflictResolver {
	gap := cfg.SeverityGap
	if gap < 1 {
		gap = 2
	}
	precedence := make(map[string]int, len(cfg.Precedence))
	for i, name := range cfg.Precedence {
		precedence[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return &ConflictResolver{
		precedence:  precedence,
		severityGap: gap,
		logger:      logger,
	}
}

// agentRating is one agent's position on a finding key.
type agentRating struct {
	agent     string
	specialty string
	severity  core.Severity
	category  string
	location  string
}

// Resolve scans all agent results for material disagreements and returns one
// Conflict per disputed key, each carrying the decision and the discarded
// alternative. Output order is deterministic.
func (r *ConflictResolver) Resolve(results []core.SpecialistResult) []core.Conflict {
	conflicts := r.severityConflicts(results)
	conflicts = append(conflicts, r.recommendationConflicts(results)...)

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Location != conflicts[j].Location {
			return conflicts[i].Location < conflicts[j].Location
		}
		return conflicts[i].FindingKeys[0] < conflicts[j].FindingKeys[0]
	})
	return conflicts
}

func (r *ConflictResolver) severityConflicts(results []core.SpecialistResult) []core.Conflict {
	ratings := make(map[string][]agentRating)
	for _, res := range results {
		// One rating per agent per key; a duplicate report keeps the
		// more severe one.
		seen := make(map[string]int)
		for _, f := range res.Findings {
			key := NormalizeFindingKey(f.Category, f.Location)
			rating := agentRating{
				agent:     res.AgentName,
				specialty: res.Specialty,
				severity:  f.Severity,
				category:  normalizeLabel(f.Category),
				location:  wildcardLines(strings.ToLower(strings.TrimSpace(f.Location))),
			}
			if idx, ok := seen[key]; ok {
				if rating.severity.Rank() > ratings[key][idx].severity.Rank() {
					ratings[key][idx] = rating
				}
				continue
			}
			seen[key] = len(ratings[key])
			ratings[key] = append(ratings[key], rating)
		}
	}

	var conflicts []core.Conflict
	for key, list := range ratings {
		if len(list) < 2 {
			continue
		}
		minRank, maxRank := list[0].severity.Rank(), list[0].severity.Rank()
		for _, rating := range list[1:] {
			if rank := rating.severity.Rank(); rank < minRank {
				minRank = rank
			} else if rank > maxRank {
				maxRank = rank
			}
		}
		if maxRank-minRank < r.severityGap {
			continue
		}
		conflicts = append(conflicts, r.resolveSeverity(key, list))
	}
	return conflicts
}

// resolveSeverity picks the severity that stands for one disputed key.
func (r *ConflictResolver) resolveSeverity(key string, list []agentRating) core.Conflict {
	sort.Slice(list, func(i, j int) bool { return list[i].agent < list[j].agent })

	votes := make(map[core.Severity][]agentRating)
	for _, rating := range list {
		votes[rating.severity] = append(votes[rating.severity], rating)
	}

	winner, method, decider := r.pickSeverity(votes)

	var positions []string
	for _, rating := range list {
		positions = append(positions, fmt.Sprintf("%s rated it %s", rating.agent, rating.severity))
	}
	var discarded []string
	for severity, raters := range votes {
		if severity == winner {
			continue
		}
		for _, rating := range raters {
			discarded = append(discarded, fmt.Sprintf("%s (%s)", severity, rating.agent))
		}
	}
	sort.Strings(discarded)

	conflict := core.Conflict{
		FindingKeys: []string{key},
		Location:    list[0].location,
		Reason: fmt.Sprintf("severity disagreement on %s at %s: %s",
			list[0].category, list[0].location, strings.Join(positions, "; ")),
		Resolution: fmt.Sprintf("severity %s stands (%s)", winner, method),
		ResolvedBy: decider,
		Discarded:  strings.Join(discarded, "; "),
	}
	r.logger.Debug("conflict resolved",
		"key", key, "resolution", conflict.Resolution, "resolved_by", decider)
	return conflict
}

// pickSeverity applies the decision ladder: clear majority, then precedence,
// then the more severe rating.
func (r *ConflictResolver) pickSeverity(votes map[core.Severity][]agentRating) (core.Severity, string, string) {
	type tally struct {
		severity core.Severity
		count    int
	}
	tallies := make([]tally, 0, len(votes))
	for severity, raters := range votes {
		tallies = append(tallies, tally{severity, len(raters)})
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].count != tallies[j].count {
			return tallies[i].count > tallies[j].count
		}
		return tallies[i].severity.Rank() > tallies[j].severity.Rank()
	})

	if len(tallies) > 1 && tallies[0].count > tallies[1].count {
		total := 0
		for _, t := range tallies {
			total += t.count
		}
		return tallies[0].severity, fmt.Sprintf("majority %d/%d", tallies[0].count, total), "majority"
	}

	if best, ok := r.bestPrecedence(votes); ok {
		return best.severity, fmt.Sprintf("%s takes precedence", best.agent), best.agent
	}

	return tallies[0].severity, "escalated to the more severe rating", "escalation"
}

// bestPrecedence finds the highest-precedence agent across all votes.
func (r *ConflictResolver) bestPrecedence(votes map[core.Severity][]agentRating) (agentRating, bool) {
	bestRank := len(r.precedence)
	var best agentRating
	found := false
	for _, raters := range votes {
		for _, rating := range raters {
			rank, ok := r.precedence[strings.ToLower(rating.agent)]
			if !ok {
				rank, ok = r.precedence[strings.ToLower(rating.specialty)]
			}
			if !ok {
				continue
			}
			if !found || rank < bestRank || (rank == bestRank && rating.agent < best.agent) {
				bestRank = rank
				best = rating
				found = true
			}
		}
	}
	return best, found
}

func (r *ConflictResolver) recommendationConflicts(results []core.SpecialistResult) []core.Conflict {
	type recVote struct {
		agent    string
		priority core.Priority
		title    string
	}
	byTitle := make(map[string][]recVote)
	for _, res := range results {
		for _, rec := range res.Recommendations {
			title := normalizeLabel(rec.Title)
			if title == "" {
				continue
			}
			byTitle[title] = append(byTitle[title], recVote{
				agent:    res.AgentName,
				priority: rec.Priority,
				title:    rec.Title,
			})
		}
	}

	var conflicts []core.Conflict
	for title, recVotes := range byTitle {
		high, medium := 0, 0
		for _, v := range recVotes {
			if v.priority == core.PriorityHigh {
				high++
			} else {
				medium++
			}
		}
		if high == 0 || medium == 0 {
			continue
		}

		sort.Slice(recVotes, func(i, j int) bool { return recVotes[i].agent < recVotes[j].agent })
		winner := core.PriorityHigh
		method := "escalated to high priority"
		decider := "escalation"
		switch {
		case medium > high:
			winner = core.PriorityMedium
			method = fmt.Sprintf("majority %d/%d", medium, high+medium)
			decider = "majority"
		case high > medium:
			method = fmt.Sprintf("majority %d/%d", high, high+medium)
			decider = "majority"
		default:
			// Tie: the highest-precedence agent's filing stands.
			bestRank := len(r.precedence)
			for _, v := range recVotes {
				rank, ok := r.precedence[strings.ToLower(v.agent)]
				if ok && rank < bestRank {
					bestRank = rank
					winner = v.priority
					method = fmt.Sprintf("%s takes precedence", v.agent)
					decider = v.agent
				}
			}
		}

		var positions []string
		var discarded []string
		for _, v := range recVotes {
			positions = append(positions, fmt.Sprintf("%s filed it %s", v.agent, v.priority))
			if v.priority != winner {
				discarded = append(discarded, fmt.Sprintf("%s (%s)", v.priority, v.agent))
			}
		}

		conflicts = append(conflicts, core.Conflict{
			FindingKeys: []string{"recommendation|" + title},
			Location:    "",
			Reason: fmt.Sprintf("priority disagreement on recommendation %q: %s",
				recVotes[0].title, strings.Join(positions, "; ")),
			Resolution: fmt.Sprintf("priority %s stands (%s)", winner, method),
			ResolvedBy: decider,
			Discarded:  strings.Join(discarded, "; "),
		})
	}
	return conflicts
}
