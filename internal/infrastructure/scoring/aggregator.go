package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// maxEvidence caps the evidence lines kept per category.
const maxEvidence = 20

// DefaultSensitiveRules are permission-abuse rule ids that count as sensitive-data access.
func DefaultSensitiveRules() []string {
	return []string{"perm-history", "perm-bookmarks", "perm-cookies"}
}

// Aggregator implements the RiskAggregator port.
type Aggregator struct {
	thresholds     domain.Thresholds
	permPoints     int
	elevatedPoints int
	excessivePts   int
	multipliers    map[domain.Category]float64
	weights        domain.BehaviorWeights
	sensitiveRules map[string]bool
	now            func() time.Time
}

// NewAggregator builds an aggregator from settings. Zero-valued fields take the defaults;
// thresholds that are not strictly ascending are rejected.
func NewAggregator(settings domain.ScoringSettings) (*Aggregator, error) {
	thresholds := settings.Thresholds
	if thresholds == (domain.Thresholds{}) {
		thresholds = domain.DefaultThresholds()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("scoring thresholds: %w", err)
	}
	for category, m := range settings.CategoryMultipliers {
		if !category.Known() {
			return nil, fmt.Errorf("category multiplier for unknown category %q", category)
		}
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("category multiplier for %s must be a finite value >= 0", category)
		}
	}

	weights := domain.DefaultBehaviorWeights()
	for category, w := range settings.BehaviorWeights {
		if w < 0 {
			return nil, fmt.Errorf("behavior weight for %s must be >= 0", category)
		}
		weights[category] = w
	}

	a := &Aggregator{
		thresholds:     thresholds,
		permPoints:     orDefault(settings.PermissionPoints, domain.DefaultPermissionPoints),
		elevatedPoints: orDefault(settings.ElevatedHostPoints, domain.DefaultElevatedHostPoints),
		excessivePts:   orDefault(settings.ExcessivePoints, domain.DefaultExcessivePoints),
		multipliers:    settings.CategoryMultipliers,
		weights:        weights,
		sensitiveRules: make(map[string]bool),
		now:            time.Now,
	}
	for _, id := range DefaultSensitiveRules() {
		a.sensitiveRules[id] = true
	}
	return a, nil
}

// Thresholds returns the active threat bands.
func (a *Aggregator) Thresholds() domain.Thresholds {
	return a.thresholds
}

// Aggregate merges the three signals into a report. It never fails: missing inputs
// contribute zero.
func (a *Aggregator) Aggregate(extensionID string, scan domain.ScanResult, perms domain.PermissionEvaluation, snapshot domain.BehavioralSnapshot) domain.RiskReport {
	report := domain.RiskReport{
		ExtensionID: extensionID,
		Categories:  make(map[string]domain.CategoryResult, len(domain.ReportCategoryOrder())),
		GeneratedAt: a.now().UTC(),
	}

	total := 0
	for _, category := range domain.Categories {
		result := a.staticCategory(category, scan.Matches[category])
		report.Categories[string(category)] = result
		total += result.Score
	}

	permResult := a.permissionCategory(perms)
	report.Categories[domain.ExcessivePermissionsCategory] = permResult
	total += permResult.Score

	counts := domain.NewBehaviorCounts()
	if snapshot.Available {
		counts = snapshot.Counts()
	}
	for _, category := range domain.BehaviorCategories {
		result := a.behaviorCategory(category, counts[category])
		report.Categories[domain.BehaviorReportKey(category)] = result
		total += result.Score
	}

	score := domain.ClampScore(total)
	if a.escalates(scan, perms, snapshot) {
		report.Escalated = true
		if floor := a.thresholds.Floor(domain.ThreatHigh); score < floor {
			score = floor
		}
	}
	report.AggregateScore = score
	report.ThreatLevel = a.thresholds.Level(score)
	return report
}

func (a *Aggregator) staticCategory(category domain.Category, matches []domain.MatchResult) domain.CategoryResult {
	result := domain.CategoryResult{Matched: len(matches) > 0, Evidence: []string{}}
	seen := make(map[string]bool)
	sum := 0
	for _, m := range matches {
		if !seen[m.RuleID] {
			seen[m.RuleID] = true
			sum += m.Weight
		}
		if len(result.Evidence) < maxEvidence {
			result.Evidence = append(result.Evidence, fmt.Sprintf("%s:%d [%s] %s", m.File, m.Line, m.RuleID, m.Evidence))
		}
	}
	multiplier := 1.0
	if m, ok := a.multipliers[category]; ok {
		multiplier = m
	}
	result.Score = capScore(float64(sum) * multiplier)
	return result
}

func (a *Aggregator) permissionCategory(perms domain.PermissionEvaluation) domain.CategoryResult {
	result := domain.CategoryResult{
		Matched:  perms.Excessive || perms.Elevated,
		Evidence: []string{},
	}
	points := perms.DangerousCount * a.permPoints
	if perms.Elevated {
		points += a.elevatedPoints
	}
	if perms.Excessive {
		points += a.excessivePts
	}
	result.Score = domain.ClampScore(points)
	for _, p := range perms.Dangerous {
		result.Evidence = append(result.Evidence, "permission: "+p)
	}
	for _, h := range perms.BroadHosts {
		result.Evidence = append(result.Evidence, "host: "+h)
	}
	return result
}

func (a *Aggregator) behaviorCategory(category domain.BehaviorCategory, count int) domain.CategoryResult {
	result := domain.CategoryResult{Matched: count > 0, Evidence: []string{}}
	if count > 0 {
		result.Score = a.weights.CategoryScore(category, count)
		result.Evidence = append(result.Evidence, fmt.Sprintf("%d %s events observed", count, category))
	}
	return result
}

// escalates reports whether an exfiltration match coincides with sensitive-data access.
func (a *Aggregator) escalates(scan domain.ScanResult, perms domain.PermissionEvaluation, snapshot domain.BehavioralSnapshot) bool {
	if !scan.HasMatches(domain.CategoryExfiltration) {
		return false
	}
	if perms.SensitiveData {
		return true
	}
	if snapshot.Available && snapshot.SensitiveDataAccess > 0 {
		return true
	}
	for _, id := range scan.MatchedRuleIDs(domain.CategoryPermissionAbuse) {
		if a.sensitiveRules[id] {
			return true
		}
	}
	return false
}

// Verify compares an analysis against an expectation.
func (a *Aggregator) Verify(scan domain.ScanResult, report domain.RiskReport, expect domain.Expectation) domain.Diagnostic {
	matched := make(map[string]bool)
	for _, category := range domain.Categories {
		for _, id := range scan.MatchedRuleIDs(category) {
			matched[id] = true
		}
	}

	diag := domain.Diagnostic{GotLevel: report.ThreatLevel, WantLevel: expect.ThreatLevel}
	for _, id := range expect.ExpectedRules {
		if !matched[id] {
			diag.MissingRules = append(diag.MissingRules, id)
		}
	}
	for _, id := range expect.ProhibitedRules {
		if matched[id] {
			diag.UnexpectedRules = append(diag.UnexpectedRules, id)
		}
	}
	levelOK := expect.ThreatLevel == "" || expect.ThreatLevel == report.ThreatLevel
	diag.Passed = levelOK && len(diag.MissingRules) == 0 && len(diag.UnexpectedRules) == 0
	return diag
}

func capScore(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= domain.MaxRiskScore {
		return domain.MaxRiskScore
	}
	return int(math.Round(v))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

var _ ports.RiskAggregator = (*Aggregator)(nil)
