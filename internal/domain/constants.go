package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Scanner constants
const (
	// DefaultAcceptanceThreshold is the coverage ratio at which a category counts as covered
	DefaultAcceptanceThreshold = 0.7
	// DefaultScanWorkers bounds concurrent per-file matching
	DefaultScanWorkers = 4
	// DefaultMaxFileBytes skips files larger than 2 MiB
	DefaultMaxFileBytes = 2 << 20
	// EvidenceContextRunes is the context kept on each side of a match
	EvidenceContextRunes = 40
	// MaxEvidenceRunes caps an evidence snippet
	MaxEvidenceRunes = 160
)

// Permission constants
const (
	// DefaultExcessiveThreshold is the dangerous-permission count that marks a manifest as excessive
	DefaultExcessiveThreshold = 3
)

// Scoring constants
const (
	DefaultPermissionPoints   = 8
	DefaultElevatedHostPoints = 12
	DefaultExcessivePoints    = 10
)

// Monitor constants
const (
	// DefaultExportInterval is how often classified events are flushed to the exporter
	DefaultExportInterval = 30 * time.Second
	// DefaultBufferCapacity bounds the pending export batch
	DefaultBufferCapacity = 1024
	// DefaultListenAddr is where `monitor serve` accepts host connections
	DefaultListenAddr = "127.0.0.1:8787"
)

// History constants
const (
	// DefaultHistoryLimit is the default number of history records to display
	DefaultHistoryLimit = 20
	// DefaultHistoryRetainDays is the default number of days to retain history
	DefaultHistoryRetainDays = 30
)

// Cache constants
const (
	// DefaultCacheTTL is how long a cached scan stays valid
	DefaultCacheTTL = time.Hour
	// DefaultMaxCacheEntries is the maximum number of cache entries
	DefaultMaxCacheEntries = 100
)

// Advisor constants
const (
	// DefaultAdvisorTimeout bounds a single advisor call
	DefaultAdvisorTimeout = 60 * time.Second
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
