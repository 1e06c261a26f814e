package domain

import "strings"

// ThreatLevel is the discrete classification of an aggregate risk score.
type ThreatLevel string

const (
	ThreatSafe       ThreatLevel = "SAFE"
	ThreatLow        ThreatLevel = "LOW"
	ThreatMedium     ThreatLevel = "MEDIUM"
	ThreatMediumHigh ThreatLevel = "MEDIUM-HIGH"
	ThreatHigh       ThreatLevel = "HIGH"
	ThreatCritical   ThreatLevel = "CRITICAL"
)

// ThreatLevels lists every level from least to most severe.
var ThreatLevels = []ThreatLevel{
	ThreatSafe,
	ThreatLow,
	ThreatMedium,
	ThreatMediumHigh,
	ThreatHigh,
	ThreatCritical,
}

// Rank returns the position of the level in ThreatLevels, or -1 when unknown.
func (l ThreatLevel) Rank() int {
	for i, level := range ThreatLevels {
		if level == l {
			return i
		}
	}
	return -1
}

// AtLeast reports whether l is as severe as other.
func (l ThreatLevel) AtLeast(other ThreatLevel) bool {
	return l.Rank() >= other.Rank()
}

// ParseThreatLevel accepts the canonical names case-insensitively, with "_" or " " in place of "-".
func ParseThreatLevel(value string) (ThreatLevel, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	for _, level := range ThreatLevels {
		if string(level) == normalized {
			return level, true
		}
	}
	return "", false
}

// Category names a static signature category.
type Category string

const (
	CategoryDynamicCode     Category = "dynamic-code-execution"
	CategoryObfuscation     Category = "obfuscation"
	CategoryPermissionAbuse Category = "permission-abuse"
	CategoryExfiltration    Category = "exfiltration"
	CategoryKeylogging      Category = "keylogging"
	CategoryFormHijacking   Category = "form-hijacking"
	CategoryClickjacking    Category = "clickjacking"
	CategoryFingerprinting  Category = "data-fingerprinting"
)

// Categories is the closed set of static categories in reporting order.
var Categories = []Category{
	CategoryDynamicCode,
	CategoryObfuscation,
	CategoryPermissionAbuse,
	CategoryExfiltration,
	CategoryKeylogging,
	CategoryFormHijacking,
	CategoryClickjacking,
	CategoryFingerprinting,
}

// Known reports whether c belongs to Categories.
func (c Category) Known() bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// ExcessivePermissionsCategory is the report key carrying the permission evaluation.
const ExcessivePermissionsCategory = "excessive-permissions"
