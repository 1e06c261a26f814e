package signatures

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/extscan-go/assets"
	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/pkg/filesystem"
)

// RuleError describes a rule that cannot be loaded or compiled.
type RuleError struct {
	Category domain.Category
	RuleID   string
	Reason   string
	Err      error
}

func (e *RuleError) Error() string {
	var b strings.Builder
	b.WriteString("rule")
	if e.Category != "" {
		fmt.Fprintf(&b, " %s", e.Category)
	}
	if e.RuleID != "" {
		fmt.Fprintf(&b, "/%s", e.RuleID)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both domain.ErrInvalidRule and the underlying cause.
func (e *RuleError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrInvalidRule}
	}
	return []error{domain.ErrInvalidRule, e.Err}
}

type compiledRule struct {
	re   *regexp.Regexp
	rule domain.PatternRule
}

type compiledCategory struct {
	category domain.Category
	rules    []compiledRule
}

// LoadRuleSet reads rules from path. An empty path or a missing file falls back to the
// embedded defaults; any other read or parse failure is returned.
func LoadRuleSet(path string) (domain.RuleSet, error) {
	path = filesystem.ExpandPath(path)
	if path == "" {
		return ParseRuleSet(assets.DefaultRulesYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ParseRuleSet(assets.DefaultRulesYAML)
		}
		return domain.RuleSet{}, &RuleError{Reason: "read rule set " + path, Err: err}
	}
	return ParseRuleSet(data)
}

// DefaultRuleSet parses the embedded rules.
func DefaultRuleSet() (domain.RuleSet, error) {
	return ParseRuleSet(assets.DefaultRulesYAML)
}

// ParseRuleSet decodes a rules YAML document and fills per-rule categories and kinds.
func ParseRuleSet(data []byte) (domain.RuleSet, error) {
	var set domain.RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return domain.RuleSet{}, &RuleError{Reason: "parse rule set", Err: err}
	}
	if len(set.Categories) == 0 {
		return domain.RuleSet{}, &RuleError{Reason: "rule set defines no categories"}
	}
	for category, rules := range set.Categories {
		for i := range rules {
			rules[i].Category = category
			if rules[i].Kind == "" {
				rules[i].Kind = domain.SignatureRegex
			}
		}
	}
	return set, nil
}

// compileRuleSet validates and compiles every rule. Any defect aborts the whole set.
func compileRuleSet(set domain.RuleSet) ([]compiledCategory, error) {
	if set.AcceptanceThreshold < 0 || set.AcceptanceThreshold > 1 {
		return nil, &RuleError{Reason: fmt.Sprintf("acceptance_threshold %.2f outside [0,1]", set.AcceptanceThreshold)}
	}
	for category := range set.Categories {
		if !category.Known() {
			return nil, &RuleError{Category: category, Reason: "unknown category"}
		}
	}

	seen := make(map[string]domain.Category)
	var compiled []compiledCategory
	for _, category := range domain.Categories {
		rules, ok := set.Categories[category]
		if !ok {
			continue
		}
		cc := compiledCategory{category: category}
		for _, rule := range rules {
			if strings.TrimSpace(rule.ID) == "" {
				return nil, &RuleError{Category: category, Reason: "rule id is empty"}
			}
			if prev, dup := seen[rule.ID]; dup {
				return nil, &RuleError{Category: category, RuleID: rule.ID, Reason: "duplicate rule id, first defined in " + string(prev)}
			}
			seen[rule.ID] = category
			if rule.Signature == "" {
				return nil, &RuleError{Category: category, RuleID: rule.ID, Reason: "signature is empty"}
			}
			if rule.Weight < 0 {
				return nil, &RuleError{Category: category, RuleID: rule.ID, Reason: "weight must be >= 0"}
			}
			re, err := compileSignature(rule)
			if err != nil {
				return nil, &RuleError{Category: category, RuleID: rule.ID, Reason: "compile signature", Err: err}
			}
			rule.Category = category
			cc.rules = append(cc.rules, compiledRule{re: re, rule: rule})
		}
		compiled = append(compiled, cc)
	}
	return compiled, nil
}

func compileSignature(rule domain.PatternRule) (*regexp.Regexp, error) {
	switch rule.Kind {
	case domain.SignatureLiteral:
		return regexp.Compile("(?i)" + regexp.QuoteMeta(rule.Signature))
	case domain.SignatureRegex, "":
		return regexp.Compile("(?i)" + rule.Signature)
	default:
		return nil, fmt.Errorf("unknown signature kind %q", rule.Kind)
	}
}
