// Package impact turns a finished review into dollar figures for
// prioritization. Pure arithmetic over the result, no I/O.
package impact

import (
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// Estimate is the financial reading of one run.
type Estimate struct {
	FindingsBySeverity map[string]int `json:"findings_by_severity"`
	AnnualRiskUSD      float64        `json:"annual_risk_usd"`
	RemediationHours   float64        `json:"remediation_hours"`
	RemediationUSD     float64        `json:"remediation_usd"`
	ROIPercent         float64        `json:"roi_percent"`
	PaybackMonths      float64        `json:"payback_months"`
}

// Compute prices the consensus findings and the recommendation backlog.
// Risk is counted per consensus entry so cross-agent duplicates are not
// double-billed; effort comes from the pre-truncation recommendation total.
func Compute(result *core.TeamAnalysisResult, cfg config.ImpactConfig) Estimate {
	est := Estimate{FindingsBySeverity: map[string]int{}}
	if result == nil {
		return est
	}

	for _, entry := range result.Consensus {
		sev := strings.ToLower(string(entry.Severity))
		est.FindingsBySeverity[sev]++
		est.AnnualRiskUSD += cfg.AnnualRiskUSD[sev]
	}
	if cfg.DiscountPercent > 0 {
		est.AnnualRiskUSD *= 1 - cfg.DiscountPercent/100
	}

	est.RemediationHours = result.Recommendations.TotalEffortHours
	est.RemediationUSD = est.RemediationHours * cfg.HourlyRateUSD

	if est.RemediationUSD > 0 {
		est.ROIPercent = (est.AnnualRiskUSD - est.RemediationUSD) / est.RemediationUSD * 100
	}
	if est.AnnualRiskUSD > 0 {
		est.PaybackMonths = est.RemediationUSD / (est.AnnualRiskUSD / 12)
	}
	return est
}
