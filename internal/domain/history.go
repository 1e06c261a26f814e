package domain

import "time"

// ReportRecord is one persisted analysis.
type ReportRecord struct {
	ID           int64       `json:"id"`
	Timestamp    time.Time   `json:"timestamp"`
	ExtensionID  string      `json:"extension_id"`
	Source       string      `json:"source"`
	ThreatLevel  ThreatLevel `json:"threat_level"`
	Score        int         `json:"score"`
	MatchCount   int         `json:"match_count"`
	WarningCount int         `json:"warning_count"`
	Report       RiskReport  `json:"report"`
}

// CacheEntry stores a cached scan result keyed by content digest.
type CacheEntry struct {
	Key       string     `json:"key"`
	Result    ScanResult `json:"result"`
	CreatedAt time.Time  `json:"created_at"`
}
