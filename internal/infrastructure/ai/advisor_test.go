package ai

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/extscan-go/internal/domain"
)

func sampleReport() domain.RiskReport {
	return domain.RiskReport{
		ExtensionID:    "abc",
		ThreatLevel:    domain.ThreatHigh,
		AggregateScore: 78,
		Escalated:      true,
		GeneratedAt:    time.Unix(0, 0),
		Categories: map[string]domain.CategoryResult{
			string(domain.CategoryExfiltration): {Matched: true, Score: 40, Evidence: []string{"bg.js:3 [exfil-webhook] fetch(hook)"}},
			string(domain.CategoryDynamicCode):  {Matched: false},
		},
	}
}

func TestFactoryDisabledReturnsNil(t *testing.T) {
	advisor, err := NewFactory().ForSettings(context.Background(), domain.AdvisorSettings{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, advisor)
}

func TestFactoryFallsBackToHeuristicWithoutKey(t *testing.T) {
	f := &Factory{lookupEnv: func(string) string { return "" }}
	advisor, err := f.ForSettings(context.Background(), domain.AdvisorSettings{
		Enabled:    true,
		Model:      "gpt-4o-mini",
		AuthEnvVar: "EXTSCAN_TEST_KEY",
	})
	require.NoError(t, err)
	assert.True(t, IsHeuristic(advisor))
}

func TestHeuristicReview(t *testing.T) {
	opinion, err := newHeuristicAdvisor().Review(context.Background(), sampleReport(), domain.ScanResult{})
	require.NoError(t, err)
	assert.True(t, opinion.IsMalicious)
	assert.Equal(t, 0.9, opinion.Confidence)
	assert.Equal(t, []string{string(domain.CategoryExfiltration)}, opinion.Indicators)

	benign := domain.RiskReport{ExtensionID: "b", ThreatLevel: domain.ThreatSafe}
	opinion, err = newHeuristicAdvisor().Review(context.Background(), benign, domain.ScanResult{})
	require.NoError(t, err)
	assert.False(t, opinion.IsMalicious)
	assert.Empty(t, opinion.Indicators)
}

func TestRenderReportPrompt(t *testing.T) {
	prompt, err := renderReportPrompt(sampleReport(), domain.ScanResult{RulesVersion: "2025.10", FilesScanned: 3})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Review browser extension: abc")
	assert.Contains(t, prompt, "Threat level: HIGH (score 78/100), escalated")
	assert.Contains(t, prompt, "Rules version: 2025.10, files scanned: 3")
	assert.Contains(t, prompt, "- exfiltration: score 40")
	assert.Contains(t, prompt, "* bg.js:3 [exfil-webhook] fetch(hook)")
	assert.NotContains(t, prompt, string(domain.CategoryDynamicCode))
}

func TestRenderReportPromptWithoutMatches(t *testing.T) {
	prompt, err := renderReportPrompt(domain.RiskReport{ExtensionID: "x", ThreatLevel: domain.ThreatSafe}, domain.ScanResult{})
	require.NoError(t, err)
	assert.Contains(t, prompt, "(none)")
}

func TestNormalizeOpinionClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, normalizeOpinion(domain.AdvisoryOpinion{Confidence: 3}).Confidence)
	assert.Equal(t, 0.0, normalizeOpinion(domain.AdvisoryOpinion{Confidence: -1}).Confidence)
	assert.Equal(t, 0.0, normalizeOpinion(domain.AdvisoryOpinion{Confidence: math.NaN()}).Confidence)
}
