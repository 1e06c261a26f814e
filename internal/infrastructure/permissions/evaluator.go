package permissions

import (
	"strings"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// DefaultDangerous is the permission set treated as dangerous when no configuration overrides it.
func DefaultDangerous() []string {
	return []string{"history", "bookmarks", "cookies", "management", "debugger", "webRequest", "webRequestBlocking"}
}

// DefaultSensitiveData lists permissions that expose user data to the extension.
func DefaultSensitiveData() []string {
	return []string{"history", "bookmarks", "cookies"}
}

// DefaultBroadHostPatterns are host patterns that grant access to every site.
func DefaultBroadHostPatterns() []string {
	return []string{"<all_urls>", "*://*/*", "http://*/*", "https://*/*", "*://*/"}
}

// Evaluator implements the PermissionEvaluator port.
type Evaluator struct {
	dangerous map[string]bool
	sensitive map[string]bool
	broad     map[string]bool
	excessive int
}

// NewEvaluator builds an evaluator from settings; empty fields fall back to the defaults.
func NewEvaluator(settings domain.PermissionSettings) *Evaluator {
	dangerous := settings.Dangerous
	if len(dangerous) == 0 {
		dangerous = DefaultDangerous()
	}
	sensitive := settings.SensitiveData
	if len(sensitive) == 0 {
		sensitive = DefaultSensitiveData()
	}
	broad := settings.BroadHostPatterns
	if len(broad) == 0 {
		broad = DefaultBroadHostPatterns()
	}
	threshold := settings.ExcessiveThreshold
	if threshold <= 0 {
		threshold = domain.DefaultExcessiveThreshold
	}
	return &Evaluator{
		dangerous: toSet(dangerous),
		sensitive: toSet(sensitive),
		broad:     toSet(broad),
		excessive: threshold,
	}
}

// Evaluate checks declared permissions against the dangerous set and host entries against
// the unrestricted patterns. Permissions are compared case-insensitively and counted once.
func (e *Evaluator) Evaluate(permissions, hostPermissions []string) domain.PermissionEvaluation {
	eval := domain.PermissionEvaluation{Dangerous: []string{}}
	seen := make(map[string]bool)
	for _, perm := range permissions {
		key := normalize(perm)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if e.broad[key] {
			eval.Elevated = true
			eval.BroadHosts = append(eval.BroadHosts, strings.TrimSpace(perm))
			continue
		}
		if e.dangerous[key] {
			eval.Dangerous = append(eval.Dangerous, strings.TrimSpace(perm))
		}
		if e.sensitive[key] {
			eval.SensitiveData = true
		}
	}
	for _, host := range hostPermissions {
		key := normalize(host)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if e.broad[key] {
			eval.Elevated = true
			eval.BroadHosts = append(eval.BroadHosts, strings.TrimSpace(host))
		}
	}
	eval.DangerousCount = len(eval.Dangerous)
	eval.Excessive = eval.DangerousCount >= e.excessive
	return eval
}

// ExcessiveThreshold returns the dangerous-permission count at which Excessive is set.
func (e *Evaluator) ExcessiveThreshold() int {
	return e.excessive
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if key := normalize(v); key != "" {
			set[key] = true
		}
	}
	return set
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

var _ ports.PermissionEvaluator = (*Evaluator)(nil)
