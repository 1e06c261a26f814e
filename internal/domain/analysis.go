package domain

// ExtensionSource is an unpacked extension ready for analysis.
type ExtensionSource struct {
	ID       string
	Root     string
	Files    []SourceFile
	Manifest []byte
}

// AnalysisRequest describes one end-to-end analysis.
type AnalysisRequest struct {
	// Path is a directory or .zip/.crx package. Ignored when Source is set.
	Path string
	// ExtensionID overrides the id derived from the manifest or path.
	ExtensionID string
	Source      *ExtensionSource
	Expect      *Expectation
	NoCache     bool
	Advise      bool
	SaveHistory bool
}

// AnalysisResult carries the report and the intermediate signals it was built from.
type AnalysisResult struct {
	Report       RiskReport           `json:"report"`
	Scan         ScanResult           `json:"scan"`
	Manifest     *ManifestSummary     `json:"manifest,omitempty"`
	Permissions  PermissionEvaluation `json:"permissions"`
	Snapshot     BehavioralSnapshot   `json:"snapshot"`
	Diagnostic   *Diagnostic          `json:"diagnostic,omitempty"`
	Opinion      *AdvisoryOpinion     `json:"opinion,omitempty"`
	AdvisorError string               `json:"advisor_error,omitempty"`
	CacheHit     bool                 `json:"cache_hit"`
	RecordID     int64                `json:"record_id,omitempty"`
}
