package domain

// AdvisoryOpinion is a second opinion on a report produced by an external reviewer.
type AdvisoryOpinion struct {
	IsMalicious   bool     `json:"is_malicious"`
	Confidence    float64  `json:"confidence"`
	Justification string   `json:"justification"`
	Indicators    []string `json:"indicators,omitempty"`
}
