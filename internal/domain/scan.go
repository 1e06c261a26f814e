package domain

// SourceFile is one packaged extension file handed to the scanner.
type SourceFile struct {
	Path    string
	Content []byte
}

// MatchResult records a rule hit inside one file. The evidence snippet is the first occurrence.
type MatchResult struct {
	RuleID      string   `json:"rule_id"`
	Category    Category `json:"category"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Evidence    string   `json:"evidence"`
	Occurrences int      `json:"occurrences"`
	Weight      int      `json:"weight"`
}

// Coverage is the fraction of a category's rules that matched at least once.
type Coverage struct {
	Matched int     `json:"matched"`
	Total   int     `json:"total"`
	Ratio   float64 `json:"ratio"`
	Covered bool    `json:"covered"`
}

// ScanWarning describes a file skipped by the scanner.
type ScanWarning struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// ScanResult is the merged output of one scan over a batch of files.
type ScanResult struct {
	Matches             map[Category][]MatchResult `json:"matches"`
	Coverage            map[Category]Coverage      `json:"coverage"`
	Warnings            []ScanWarning              `json:"warnings,omitempty"`
	FilesScanned        int                        `json:"files_scanned"`
	AcceptanceThreshold float64                    `json:"acceptance_threshold"`
	RulesVersion        string                     `json:"rules_version"`
}

// MatchedRuleIDs returns the distinct rule IDs that matched in category c, in first-seen order.
func (r ScanResult) MatchedRuleIDs(c Category) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range r.Matches[c] {
		if seen[m.RuleID] {
			continue
		}
		seen[m.RuleID] = true
		ids = append(ids, m.RuleID)
	}
	return ids
}

// HasMatches reports whether category c has at least one match.
func (r ScanResult) HasMatches(c Category) bool {
	return len(r.Matches[c]) > 0
}

// TotalMatches counts match records across all categories.
func (r ScanResult) TotalMatches() int {
	total := 0
	for _, matches := range r.Matches {
		total += len(matches)
	}
	return total
}
