package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// MarkdownWriter renders a report as PR-friendly markdown.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	result := report.Result
	if result == nil {
		return fmt.Errorf("report carries no result")
	}

	fmt.Fprintf(w, "# Council Review %s\n\n", result.RunID)
	if result.Objective != "" {
		fmt.Fprintf(w, "**Objective:** %s\n\n", result.Objective)
	}
	if result.ExecutiveSummary != "" {
		fmt.Fprintf(w, "%s\n\n", result.ExecutiveSummary)
	}

	fmt.Fprintf(w, "## Files (%d)\n\n", len(result.Files))
	fmt.Fprintf(w, "| File | Status | Findings |\n")
	fmt.Fprintf(w, "|------|--------|----------|\n")
	for _, fa := range result.Files {
		fmt.Fprintf(w, "| `%s` | %s | %d |\n", fa.File, statusLabel(fa.Status), len(fa.Findings))
	}
	fmt.Fprintln(w)

	if len(result.Consensus) > 0 {
		fmt.Fprintf(w, "## Consensus (%d findings)\n\n", len(result.Consensus))
		fmt.Fprintf(w, "| Finding | Severity | Agreement | Confidence | Tier |\n")
		fmt.Fprintf(w, "|---------|----------|-----------|------------|------|\n")
		for _, entry := range result.Consensus {
			fmt.Fprintf(w, "| %s `%s` | %s | %d agent(s) | %.0f%% | %s |\n",
				severityIcon(entry.Severity), entry.FindingKey, entry.Severity,
				len(entry.ReportingAgents), entry.WeightedConfidence*100, entry.Tier)
		}
		fmt.Fprintln(w)
	}

	if len(result.Conflicts) > 0 {
		fmt.Fprintf(w, "## Conflicts (%d)\n\n", len(result.Conflicts))
		for _, c := range result.Conflicts {
			fmt.Fprintf(w, "- `%s`: %s. Resolution: %s (%s)\n", c.Location, c.Reason, c.Resolution, c.ResolvedBy)
		}
		fmt.Fprintln(w)
	}

	writeRecommendations(w, result.Recommendations)
	writeImpact(w, report)

	metrics := result.Metrics
	fmt.Fprintf(w, "---\n\n*Reviewed %d file(s) in %dms (analysis %dms, peer review %dms, synthesis %dms) using %d LLM call(s), parallel speedup %.1fx.*\n",
		len(result.Files), metrics.TotalMs, metrics.AgentAnalysisMs, metrics.PeerReviewMs,
		metrics.SynthesisMs, metrics.LLMCallCount, metrics.ParallelSpeedup)
	return nil
}

func writeRecommendations(w io.Writer, recs core.RecommendationSet) {
	if len(recs.High) == 0 && len(recs.Medium) == 0 {
		return
	}
	fmt.Fprintf(w, "## Recommendations\n\n")
	if len(recs.High) > 0 {
		fmt.Fprintf(w, "### High priority\n\n")
		for i, rec := range recs.High {
			fmt.Fprintf(w, "%d. **%s** (~%.0fh) %s\n", i+1, rec.Title, rec.EstimatedEffortHours, rec.Description)
		}
		fmt.Fprintln(w)
	}
	if len(recs.Medium) > 0 {
		fmt.Fprintf(w, "### Medium priority\n\n")
		for i, rec := range recs.Medium {
			fmt.Fprintf(w, "%d. **%s** (~%.0fh) %s\n", i+1, rec.Title, rec.EstimatedEffortHours, rec.Description)
		}
		fmt.Fprintln(w)
	}
	if recs.TotalEffortHours > 0 {
		fmt.Fprintf(w, "Total remediation effort: **%.0f hours**\n\n", recs.TotalEffortHours)
	}
}

func writeImpact(w io.Writer, report *Report) {
	est := report.Impact
	if est.AnnualRiskUSD == 0 && est.RemediationUSD == 0 {
		return
	}
	fmt.Fprintf(w, "## Business impact\n\n")
	fmt.Fprintf(w, "| Annual risk | Remediation cost | ROI | Payback |\n")
	fmt.Fprintf(w, "|-------------|------------------|-----|---------|\n")
	fmt.Fprintf(w, "| $%.0f | $%.0f | %.0f%% | %.1f months |\n\n",
		est.AnnualRiskUSD, est.RemediationUSD, est.ROIPercent, est.PaybackMonths)
}

func statusLabel(status core.FileStatus) string {
	switch status {
	case core.FileCompleted:
		return "completed"
	case core.FileCompletedFallback:
		return "completed (fallback)"
	case core.FileFailed:
		return "failed"
	default:
		return string(status)
	}
}

func severityIcon(sev core.Severity) string {
	switch sev {
	case core.SeverityCritical:
		return ":red_circle:"
	case core.SeverityHigh:
		return ":orange_circle:"
	case core.SeverityMedium:
		return ":yellow_circle:"
	case core.SeverityLow:
		return ":white_circle:"
	default:
		return ":white_circle:"
	}
}

// Plain is the markdown rendering as a string, for embedding and tests.
func Plain(report *Report) (string, error) {
	var b strings.Builder
	if err := (&MarkdownWriter{}).Write(&b, report); err != nil {
		return "", err
	}
	return b.String(), nil
}
