package core

import (
	"sort"
	"strings"
	"time"
)

// RunID uniquely identifies an analysis run.
type RunID string

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity normalizes free-text severity labels. Unknown labels map to
// medium so a sloppy upstream response never drops a finding.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker":
		return SeverityCritical
	case "high", "major":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low", "minor", "info":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// FileUnit is one analyzable source file with its extracted metadata.
// Immutable once handed to the scheduler.
type FileUnit struct {
	Name             string   `json:"name"`
	SizeBytes        int64    `json:"size_bytes"`
	Language         string   `json:"language"`
	MetadataSummary  string   `json:"metadata_summary"`
	ComplexityScore  float64  `json:"complexity_score"`
	LegacyIndicators []string `json:"legacy_indicators,omitempty"`
	Content          string   `json:"-"`
}

// Batch is a bounded group of files analyzed via one upstream call.
// EstimatedTokens never exceeds the configured budget after construction.
type Batch struct {
	Index           int
	ModuleKey       string
	Files           []FileUnit
	PreviewLimit    int
	EstimatedTokens int
}

// AgentProfile is the static identity of one specialist agent.
type AgentProfile struct {
	Name                string  `json:"name" yaml:"name"`
	Specialty           string  `json:"specialty" yaml:"specialty"`
	Persona             string  `json:"persona" yaml:"persona"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// SpecialistFinding is a single issue reported by one agent.
type SpecialistFinding struct {
	Category   string   `json:"category"`
	Severity   Severity `json:"severity"`
	Location   string   `json:"location"`
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence"`
}

// SpecialistResult is the full output of one agent invocation. It is created
// once and only read afterwards; downstream stages never mutate it.
type SpecialistResult struct {
	AgentName          string              `json:"agent_name"`
	Specialty          string              `json:"specialty"`
	Findings           []SpecialistFinding `json:"findings"`
	ConfidenceScore    float64             `json:"confidence_score"`
	BusinessImpactText string              `json:"business_impact_text,omitempty"`
	Recommendations    []Recommendation    `json:"recommendations,omitempty"`

	// FileSummaries holds the agent's per-file summary, keyed by file name
	// as it appeared in the reply sections.
	FileSummaries map[string]string `json:"file_summaries,omitempty"`

	// FallbackFiles lists files whose reply section could not be parsed and
	// was rescued heuristically. Fallback marks the same condition for the
	// reply as a whole.
	FallbackFiles []string `json:"fallback_files,omitempty"`
	Fallback      bool     `json:"fallback,omitempty"`
}

// CoveredFiles returns every file the agent addressed, parsed or fallback.
func (r *SpecialistResult) CoveredFiles() []string {
	seen := make(map[string]struct{}, len(r.FileSummaries)+len(r.FallbackFiles))
	out := make([]string, 0, len(seen))
	for name := range r.FileSummaries {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for _, name := range r.FallbackFiles {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MessageType distinguishes transcript entries.
type MessageType string

const (
	MessageAnalysis   MessageType = "analysis"
	MessagePeerReview MessageType = "peer_review"
	MessageSynthesis  MessageType = "synthesis"
)

// PeerReviewMessage is one append-only transcript entry of the agent
// discussion round.
type PeerReviewMessage struct {
	ConversationID string      `json:"conversation_id"`
	FromAgent      string      `json:"from_agent"`
	ToAgent        string      `json:"to_agent,omitempty"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Timestamp      time.Time   `json:"timestamp"`
}

// ConsensusTier buckets agreement strength.
type ConsensusTier string

const (
	TierFullyConsistent      ConsensusTier = "fully_consistent"
	TierHighlyConsistent     ConsensusTier = "highly_consistent"
	TierModeratelyConsistent ConsensusTier = "moderately_consistent"
	TierLowConsistency       ConsensusTier = "low_consistency"
)

// ConsensusEntry is the agreement summary for one normalized finding key.
// Derived per run, never persisted across runs.
type ConsensusEntry struct {
	FindingKey         string        `json:"finding_key"`
	Category           string        `json:"category"`
	Location           string        `json:"location"`
	Severity           Severity      `json:"severity"`
	ReportingAgents    []string      `json:"reporting_agents"`
	AgreementRatio     float64       `json:"agreement_ratio"`
	WeightedConfidence float64       `json:"weighted_confidence"`
	Tier               ConsensusTier `json:"tier"`
}

// Conflict records two agent positions that could not both stand, plus the
// resolution that was chosen.
type Conflict struct {
	FindingKeys []string `json:"finding_keys"`
	Location    string   `json:"location"`
	Reason      string   `json:"reason"`
	Resolution  string   `json:"resolution"`
	ResolvedBy  string   `json:"resolved_by"`
	Discarded   string   `json:"discarded,omitempty"`
}

// Priority buckets recommendations for reporting.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Recommendation is one actionable item synthesized from agent findings.
type Recommendation struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Priority             Priority `json:"priority"`
	EstimatedEffortHours float64  `json:"estimated_effort_hours"`
	Score                float64  `json:"score,omitempty"`
}

// RecommendationSet is the ranked, capped output split into priority buckets.
// TotalEffortHours sums the full pre-truncation set.
type RecommendationSet struct {
	High             []Recommendation `json:"high"`
	Medium           []Recommendation `json:"medium"`
	TotalEffortHours float64          `json:"total_effort_hours"`
}

// FileStatus tags how a file's analysis completed.
type FileStatus string

const (
	FileCompleted         FileStatus = "completed"
	FileCompletedFallback FileStatus = "completed_fallback"
	FileFailed            FileStatus = "failed"
)

// FileAssessment is the per-file entry of a run result. Every input file
// appears exactly once, regardless of how its processing went.
type FileAssessment struct {
	File     string              `json:"file"`
	Status   FileStatus          `json:"status"`
	Findings []SpecialistFinding `json:"findings,omitempty"`
	Summary  string              `json:"summary,omitempty"`
}

// PerformanceMetrics captures per-phase wall times and call accounting
// for one run.
type PerformanceMetrics struct {
	PreprocessMs    int64   `json:"preprocess_ms"`
	AgentAnalysisMs int64   `json:"agent_analysis_ms"`
	PeerReviewMs    int64   `json:"peer_review_ms"`
	SynthesisMs     int64   `json:"synthesis_ms"`
	TotalMs         int64   `json:"total_ms"`
	LLMCallCount    int64   `json:"llm_call_count"`
	ParallelSpeedup float64 `json:"parallel_speedup"`
}

// TeamAnalysisResult is the complete output of one orchestrated run.
type TeamAnalysisResult struct {
	RunID             RunID               `json:"run_id"`
	Objective         string              `json:"objective"`
	StartedAt         time.Time           `json:"started_at"`
	CompletedAt       time.Time           `json:"completed_at"`
	Files             []FileAssessment    `json:"files"`
	IndividualResults []SpecialistResult  `json:"individual_results"`
	Consensus         []ConsensusEntry    `json:"consensus"`
	Conflicts         []Conflict          `json:"conflicts"`
	Recommendations   RecommendationSet   `json:"recommendations"`
	Transcript        []PeerReviewMessage `json:"transcript,omitempty"`
	ExecutiveSummary  string              `json:"executive_summary"`
	Metrics           PerformanceMetrics  `json:"metrics"`
}

// FindingsFor returns the findings whose location references the named file.
func FindingsFor(results []SpecialistResult, file string) []SpecialistFinding {
	var out []SpecialistFinding
	for _, r := range results {
		for _, f := range r.Findings {
			if locationFile(f.Location) == file {
				out = append(out, f)
			}
		}
	}
	return out
}

// locationFile extracts the file part of a "path:line" location.
func locationFile(loc string) string {
	if i := strings.LastIndex(loc, ":"); i > 0 {
		tail := loc[i+1:]
		if tail != "" && isDigits(tail) {
			return loc[:i]
		}
	}
	return loc
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
