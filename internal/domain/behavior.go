package domain

import "time"

// BehaviorCategory is a live-observation classification bucket.
type BehaviorCategory string

const (
	BehaviorSuspiciousRequests BehaviorCategory = "suspiciousRequests"
	BehaviorKeylogging         BehaviorCategory = "keylogging"
	BehaviorFormHijacking      BehaviorCategory = "formHijacking"
	BehaviorClickjacking       BehaviorCategory = "clickjacking"
	BehaviorDataAccess         BehaviorCategory = "dataAccess"
	BehaviorDangerousAPIs      BehaviorCategory = "dangerousAPIs"
)

// BehaviorCategories lists every behavioral category in reporting order.
var BehaviorCategories = []BehaviorCategory{
	BehaviorSuspiciousRequests,
	BehaviorKeylogging,
	BehaviorFormHijacking,
	BehaviorClickjacking,
	BehaviorDataAccess,
	BehaviorDangerousAPIs,
}

// Event kinds the host environment reports.
const (
	KindRequest          = "request"
	KindFetch            = "fetch"
	KindXHR              = "xhr"
	KindBeacon           = "beacon"
	KindImage            = "image"
	KindKeyDown          = "keydown"
	KindKeyUp            = "keyup"
	KindKeyPress         = "keypress"
	KindListener         = "listener"
	KindFormSubmit       = "form_submit"
	KindFormActionChange = "form_action_change"
	KindDOMInsert        = "dom_insert"
	KindAPICall          = "api_call"
	KindStorageAccess    = "storage_access"
	KindCookieAccess     = "cookie_access"
)

// Payload keys understood by the classifiers.
const (
	PayloadURL           = "url"
	PayloadOrigin        = "origin"
	PayloadBody          = "body"
	PayloadTarget        = "target"
	PayloadInputType     = "input_type"
	PayloadEventType     = "event_type"
	PayloadAction        = "action"
	PayloadAPI           = "api"
	PayloadArgType       = "arg_type"
	PayloadTag           = "tag"
	PayloadPosition      = "position"
	PayloadOpacity       = "opacity"
	PayloadZIndex        = "z_index"
	PayloadPointerEvents = "pointer_events"
	PayloadCoverage      = "viewport_coverage"
)

// BehaviorEvent is one raw observation delivered by the host environment.
// Kind is the host-side event category, before classification.
type BehaviorEvent struct {
	ExtensionID string            `json:"extensionId"`
	Kind        string            `json:"kind"`
	Payload     map[string]string `json:"payload,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ClassifiedEvent pairs an event with the category it was counted under.
type ClassifiedEvent struct {
	Event        BehaviorEvent    `json:"event"`
	Category     BehaviorCategory `json:"category"`
	ClassifiedAt time.Time        `json:"classified_at"`
}

// BehaviorCounts maps each behavioral category to an event count.
type BehaviorCounts map[BehaviorCategory]int

// NewBehaviorCounts returns counts with every category present and zero.
func NewBehaviorCounts() BehaviorCounts {
	counts := make(BehaviorCounts, len(BehaviorCategories))
	for _, c := range BehaviorCategories {
		counts[c] = 0
	}
	return counts
}

// Clone copies the counts, filling missing categories with zero.
func (c BehaviorCounts) Clone() BehaviorCounts {
	out := NewBehaviorCounts()
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total sums all categories.
func (c BehaviorCounts) Total() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

// BehaviorWeights holds the points each classified event adds to the behavioral score.
type BehaviorWeights map[BehaviorCategory]int

// DefaultBehaviorWeights is the documented weight table. Sensitive categories weigh more
// than generic suspicious requests.
//
//	keylogging          20
//	dataAccess          15
//	formHijacking       15
//	clickjacking        12
//	dangerousAPIs        8
//	suspiciousRequests   5
func DefaultBehaviorWeights() BehaviorWeights {
	return BehaviorWeights{
		BehaviorKeylogging:         20,
		BehaviorDataAccess:         15,
		BehaviorFormHijacking:      15,
		BehaviorClickjacking:       12,
		BehaviorDangerousAPIs:      8,
		BehaviorSuspiciousRequests: 5,
	}
}

// CategoryScore returns count*weight for one category, capped at MaxRiskScore.
func (w BehaviorWeights) CategoryScore(category BehaviorCategory, count int) int {
	weight := w[category]
	if count <= 0 || weight <= 0 {
		return 0
	}
	if count >= MaxRiskScore/weight+1 {
		return MaxRiskScore
	}
	return ClampScore(count * weight)
}

// Score is the weighted sum of counts clamped to [0,100].
func (w BehaviorWeights) Score(counts BehaviorCounts) int {
	total := 0
	for _, category := range BehaviorCategories {
		total += w.CategoryScore(category, counts[category])
		if total >= MaxRiskScore {
			return MaxRiskScore
		}
	}
	return ClampScore(total)
}

// BehavioralSnapshot is the process-wide view of runtime monitoring.
type BehavioralSnapshot struct {
	Available          bool `json:"available"`
	SuspiciousRequests int  `json:"suspiciousRequests"`
	Keylogging         int  `json:"keylogging"`
	FormHijacking      int  `json:"formHijacking"`
	Clickjacking       int  `json:"clickjacking"`
	DataAccess         int  `json:"dataAccess"`
	DangerousAPIs      int  `json:"dangerousAPIs"`
	RiskScore          int  `json:"riskScore"`

	// SensitiveDataAccess is the part of DataAccess that touched history, bookmarks or cookies.
	SensitiveDataAccess int `json:"sensitiveDataAccess"`
}

// NewBehavioralSnapshot flattens counts into a snapshot.
func NewBehavioralSnapshot(available bool, counts BehaviorCounts, riskScore int) BehavioralSnapshot {
	return BehavioralSnapshot{
		Available:          available,
		SuspiciousRequests: counts[BehaviorSuspiciousRequests],
		Keylogging:         counts[BehaviorKeylogging],
		FormHijacking:      counts[BehaviorFormHijacking],
		Clickjacking:       counts[BehaviorClickjacking],
		DataAccess:         counts[BehaviorDataAccess],
		DangerousAPIs:      counts[BehaviorDangerousAPIs],
		RiskScore:          riskScore,
	}
}

// Counts converts the snapshot back into per-category counts.
func (s BehavioralSnapshot) Counts() BehaviorCounts {
	return BehaviorCounts{
		BehaviorSuspiciousRequests: s.SuspiciousRequests,
		BehaviorKeylogging:         s.Keylogging,
		BehaviorFormHijacking:      s.FormHijacking,
		BehaviorClickjacking:       s.Clickjacking,
		BehaviorDataAccess:         s.DataAccess,
		BehaviorDangerousAPIs:      s.DangerousAPIs,
	}
}

// ExtensionMonitoringResults is the per-extension view of a tracked session.
type ExtensionMonitoringResults struct {
	ExtensionID            string         `json:"extensionId"`
	Behaviors              BehaviorCounts `json:"behaviors"`
	RiskScore              int            `json:"riskScore"`
	ClassificationFailures int            `json:"classificationFailures"`
	MonitoredSince         time.Time      `json:"monitoredSince"`
}
