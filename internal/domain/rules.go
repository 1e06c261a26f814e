package domain

import "errors"

// SignatureKind selects how a rule signature is interpreted.
type SignatureKind string

const (
	SignatureRegex   SignatureKind = "regex"
	SignatureLiteral SignatureKind = "literal"
)

// PatternRule is one detectable textual pattern tied to a category and severity weight.
// Rules are loaded once and never mutated afterwards.
type PatternRule struct {
	ID          string        `yaml:"id" json:"id"`
	Category    Category      `yaml:"-" json:"category"`
	Signature   string        `yaml:"signature" json:"signature"`
	Kind        SignatureKind `yaml:"kind,omitempty" json:"kind"`
	Weight      int           `yaml:"weight" json:"weight"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
}

// RuleSet mirrors the rules YAML document.
//
// Categories map to ordered rule lists; the order of rules within a category is preserved.
type RuleSet struct {
	Version             string                     `yaml:"version"`
	AcceptanceThreshold float64                    `yaml:"acceptance_threshold"`
	Categories          map[Category][]PatternRule `yaml:"categories"`
}

// ErrInvalidRule marks rule configuration that cannot be compiled.
var ErrInvalidRule = errors.New("invalid rule configuration")
