package domain

import (
	"fmt"
	"time"
)

const (
	MinRiskScore = 0
	MaxRiskScore = 100
)

// ClampScore bounds a score to [MinRiskScore, MaxRiskScore].
func ClampScore(score int) int {
	switch {
	case score < MinRiskScore:
		return MinRiskScore
	case score > MaxRiskScore:
		return MaxRiskScore
	default:
		return score
	}
}

// CategoryResult is one category row of a report.
type CategoryResult struct {
	Matched  bool     `json:"matched"`
	Score    int      `json:"score"`
	Evidence []string `json:"evidence"`
}

// RiskReport is the aggregated verdict for one extension. It is derived on demand.
type RiskReport struct {
	ExtensionID    string                    `json:"extensionId"`
	ThreatLevel    ThreatLevel               `json:"threatLevel"`
	AggregateScore int                       `json:"aggregateScore"`
	Categories     map[string]CategoryResult `json:"categories"`
	Escalated      bool                      `json:"escalated,omitempty"`
	GeneratedAt    time.Time                 `json:"generatedAt"`
}

// MatchedCategories returns the names of categories flagged as matched, in reporting order.
func (r RiskReport) MatchedCategories() []string {
	var names []string
	for _, name := range ReportCategoryOrder() {
		if result, ok := r.Categories[name]; ok && result.Matched {
			names = append(names, name)
		}
	}
	return names
}

// ReportCategoryOrder is the presentation order of report categories.
func ReportCategoryOrder() []string {
	order := make([]string, 0, len(Categories)+1+len(BehaviorCategories))
	for _, c := range Categories {
		order = append(order, string(c))
	}
	order = append(order, ExcessivePermissionsCategory)
	for _, c := range BehaviorCategories {
		order = append(order, BehaviorReportKey(c))
	}
	return order
}

// BehaviorReportKey is the report key of a behavioral category. Runtime keys are prefixed
// so they never collide with static categories of the same name.
func BehaviorReportKey(c BehaviorCategory) string {
	return "runtime." + string(c)
}

// Thresholds are the lower bounds of each non-SAFE threat band.
type Thresholds struct {
	Low        int `yaml:"low" json:"low"`
	Medium     int `yaml:"medium" json:"medium"`
	MediumHigh int `yaml:"medium_high" json:"medium_high"`
	High       int `yaml:"high" json:"high"`
	Critical   int `yaml:"critical" json:"critical"`
}

// DefaultThresholds: SAFE [0,10) LOW [10,30) MEDIUM [30,50) MEDIUM-HIGH [50,70) HIGH [70,90) CRITICAL [90,100].
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 10, Medium: 30, MediumHigh: 50, High: 70, Critical: 90}
}

// Validate requires strictly ascending bounds inside (0,100].
func (t Thresholds) Validate() error {
	bounds := []int{t.Low, t.Medium, t.MediumHigh, t.High, t.Critical}
	prev := MinRiskScore
	for i, b := range bounds {
		if b <= prev || b > MaxRiskScore {
			return fmt.Errorf("threshold for %s must be in (%d,%d], got %d", ThreatLevels[i+1], prev, MaxRiskScore, b)
		}
		prev = b
	}
	return nil
}

// Level maps a score onto the six-level taxonomy.
func (t Thresholds) Level(score int) ThreatLevel {
	score = ClampScore(score)
	switch {
	case score >= t.Critical:
		return ThreatCritical
	case score >= t.High:
		return ThreatHigh
	case score >= t.MediumHigh:
		return ThreatMediumHigh
	case score >= t.Medium:
		return ThreatMedium
	case score >= t.Low:
		return ThreatLow
	default:
		return ThreatSafe
	}
}

// Floor returns the minimum score that maps to level.
func (t Thresholds) Floor(level ThreatLevel) int {
	switch level {
	case ThreatLow:
		return t.Low
	case ThreatMedium:
		return t.Medium
	case ThreatMediumHigh:
		return t.MediumHigh
	case ThreatHigh:
		return t.High
	case ThreatCritical:
		return t.Critical
	default:
		return MinRiskScore
	}
}

// Expectation describes what a fixture-driven consumer expects from an analysis.
type Expectation struct {
	ExpectedRules   []string
	ProhibitedRules []string
	ThreatLevel     ThreatLevel
}

// Diagnostic lists the differences between an analysis and an Expectation.
type Diagnostic struct {
	MissingRules    []string    `json:"missing_rules,omitempty"`
	UnexpectedRules []string    `json:"unexpected_rules,omitempty"`
	WantLevel       ThreatLevel `json:"want_level,omitempty"`
	GotLevel        ThreatLevel `json:"got_level"`
	Passed          bool        `json:"passed"`
}
