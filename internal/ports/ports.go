// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the analysis core and external
// adapters (infrastructure). The scanner, evaluator, monitor and aggregator are
// consumed through these interfaces so the application services stay independent
// of storage, transport and CLI concerns.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., SignatureScanner, HostEnvironment)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.extscan/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// SignatureScanner matches extension source text against the compiled rule set.
// Scanning is stateless; the rule set is fixed at construction.
type SignatureScanner interface {
	Scan(files []domain.SourceFile) domain.ScanResult
	Rules() []domain.PatternRule
	Version() string
	Fingerprint() string
}

// PermissionEvaluator maps declared manifest permissions to severity features.
type PermissionEvaluator interface {
	Evaluate(permissions, hostPermissions []string) domain.PermissionEvaluation
}

// ManifestParser extracts permission fields from a raw manifest document.
type ManifestParser interface {
	Parse(data []byte) (domain.ManifestSummary, error)
}

// RiskAggregator merges static, permission and behavioral signals into a report.
type RiskAggregator interface {
	Aggregate(extensionID string, scan domain.ScanResult, perms domain.PermissionEvaluation, snapshot domain.BehavioralSnapshot) domain.RiskReport
	Verify(scan domain.ScanResult, report domain.RiskReport, expect domain.Expectation) domain.Diagnostic
}

// EventSink receives live behavior events. The host environment calls Ingest
// from its own goroutines; implementations must not block.
type EventSink interface {
	Ingest(domain.BehaviorEvent)
}

// HostEnvironment is the subscription point that supplies live event hooks.
// Register attaches a sink; Available answers whether hooks can actually fire.
type HostEnvironment interface {
	Available() bool
	Register(EventSink) error
}

// BehaviorMonitor tracks monitoring sessions and classifies live events.
type BehaviorMonitor interface {
	EventSink
	StartMonitoringExtension(extensionID string)
	StopMonitoringExtension(extensionID string)
	IsRuntimeMonitoringAvailable() bool
	GetBehavioralAnalysis() domain.BehavioralSnapshot
	GetExtensionMonitoringResults(extensionID string) *domain.ExtensionMonitoringResults
}

// EventClassifier assigns a live event to at most one behavioral category.
// ok is false for benign events; a non-nil error is a classification failure.
type EventClassifier interface {
	Classify(domain.BehaviorEvent) (category domain.BehaviorCategory, ok bool, err error)
}

// EventExporter receives batches of classified events. Export is best-effort.
type EventExporter interface {
	ExportEvents(ctx context.Context, batch []domain.ClassifiedEvent) error
}

// ReportRepository persists analysis reports.
type ReportRepository interface {
	Save(record domain.ReportRecord) (int64, error)
	Records(limit int, extensionID string) ([]domain.ReportRecord, error)
	Get(id int64) (domain.ReportRecord, bool, error)
	Clear() error
	ExportJSON(dest string) error
	PruneOlderThan(days int) error
	Path() string
}

// ScanCache stores scan results addressed by content digest.
type ScanCache interface {
	Key(rulesFingerprint string, files []domain.SourceFile) string
	Get(key string) (domain.CacheEntry, bool, error)
	Set(entry domain.CacheEntry) error
	Clear() error
	TTL() time.Duration
}

// ReportAdvisor produces an external second opinion on a report.
type ReportAdvisor interface {
	Review(ctx context.Context, report domain.RiskReport, scan domain.ScanResult) (domain.AdvisoryOpinion, error)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
