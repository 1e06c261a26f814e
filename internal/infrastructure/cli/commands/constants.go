package commands

import "github.com/doeshing/extscan-go/internal/domain"

// History constants
const (
	DefaultHistoryLimit      = domain.DefaultHistoryLimit
	DefaultHistoryRetainDays = domain.DefaultHistoryRetainDays
	// MaxHistoryAnalysisRecords bounds the records read by `history stats`
	MaxHistoryAnalysisRecords = 1000
	// TimestampFormat is used for listing history
	TimestampFormat = "2006-01-02 15:04:05"
)

// Error messages
const (
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrHistoryStoreUnavailable  = "history store unavailable (history.enabled is false)"
	ErrInvalidRetainDays        = "--days must be > 0"
	ErrCacheStoreUnavailable    = "cache store unavailable (cache.enabled is false)"
)

// Success messages
const (
	MsgNoHistoryRecorded = "No history recorded yet."
	MsgHistoryCleared    = "History cleared."
	MsgRulesValid        = "Rule set valid"
	MsgCacheCleared      = "Cache cleared."

	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
)
