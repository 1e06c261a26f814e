package helpers

import (
	"sort"

	"github.com/doeshing/extscan-go/internal/domain"
)

// ExtensionStatistic represents how often an extension was analyzed and its worst verdict
type ExtensionStatistic struct {
	ExtensionID string
	Count       int
	WorstLevel  domain.ThreatLevel
}

// LevelCount is one row of a threat-level distribution
type LevelCount struct {
	Level domain.ThreatLevel
	Count int
}

// CalculateTopExtensions returns the N most frequently analyzed extensions.
// If limit is 0 or negative, returns all extensions
func CalculateTopExtensions(records []domain.ReportRecord, limit int) []ExtensionStatistic {
	byID := make(map[string]*ExtensionStatistic)
	for _, rec := range records {
		stat, ok := byID[rec.ExtensionID]
		if !ok {
			stat = &ExtensionStatistic{ExtensionID: rec.ExtensionID, WorstLevel: rec.ThreatLevel}
			byID[rec.ExtensionID] = stat
		}
		stat.Count++
		if rec.ThreatLevel.Rank() > stat.WorstLevel.Rank() {
			stat.WorstLevel = rec.ThreatLevel
		}
	}

	stats := make([]ExtensionStatistic, 0, len(byID))
	for _, stat := range byID {
		stats = append(stats, *stat)
	}
	sortStatisticsByFrequency(stats)

	if shouldLimitResults(limit, len(stats)) {
		return stats[:limit]
	}
	return stats
}

// sortStatisticsByFrequency sorts statistics by count (descending) then by id (ascending)
func sortStatisticsByFrequency(stats []ExtensionStatistic) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count == stats[j].Count {
			return stats[i].ExtensionID < stats[j].ExtensionID
		}
		return stats[i].Count > stats[j].Count
	})
}

// shouldLimitResults checks if we should limit the results based on the limit and actual length
func shouldLimitResults(limit int, actualLength int) bool {
	return limit > 0 && actualLength > limit
}

// LevelDistribution counts records per threat level, in severity order, omitting empty levels
func LevelDistribution(records []domain.ReportRecord) []LevelCount {
	counts := make(map[domain.ThreatLevel]int)
	for _, rec := range records {
		counts[rec.ThreatLevel]++
	}
	var out []LevelCount
	for _, level := range domain.ThreatLevels {
		if counts[level] > 0 {
			out = append(out, LevelCount{Level: level, Count: counts[level]})
		}
	}
	return out
}

// AverageScore returns the mean aggregate score
func AverageScore(records []domain.ReportRecord) float64 {
	if len(records) == 0 {
		return 0.0
	}
	total := 0
	for _, rec := range records {
		total += rec.Score
	}
	return float64(total) / float64(len(records))
}
