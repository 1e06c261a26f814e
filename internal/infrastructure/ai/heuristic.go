package ai

import (
	"context"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// heuristicAdvisor derives an opinion from the report alone. It is the offline fallback
// used when no credentials are configured.
type heuristicAdvisor struct{}

func newHeuristicAdvisor() ports.ReportAdvisor {
	return heuristicAdvisor{}
}

func (heuristicAdvisor) Review(_ context.Context, report domain.RiskReport, _ domain.ScanResult) (domain.AdvisoryOpinion, error) {
	indicators := report.MatchedCategories()
	malicious := report.ThreatLevel.AtLeast(domain.ThreatHigh)

	confidence := 0.5
	switch {
	case report.Escalated:
		confidence = 0.9
	case len(indicators) >= 3:
		confidence = 0.75
	case len(indicators) == 0:
		confidence = 0.8
	}

	justification := "Heuristic opinion (offline fallback): no indicators matched."
	if len(indicators) > 0 {
		justification = "Heuristic opinion (offline fallback) derived from threat level " + string(report.ThreatLevel) + "."
	}

	return domain.AdvisoryOpinion{
		IsMalicious:   malicious,
		Confidence:    confidence,
		Justification: justification,
		Indicators:    indicators,
	}, nil
}
