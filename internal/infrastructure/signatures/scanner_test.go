package signatures

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/extscan-go/internal/domain"
)

const dynamicSource = `
function run(payload) {
  eval(payload);
  var fn = new Function("a", "return a");
  setTimeout("tick()", 100);
  setInterval('poll()', 5000);
}
`

const benignSource = `
document.querySelector("#save").addEventListener("click", function () {
  chrome.storage.sync.set({ theme: "dark" });
  console.log("saved");
});
`

func newDefaultScanner(t *testing.T) *Scanner {
	t.Helper()
	set, err := DefaultRuleSet()
	if err != nil {
		t.Fatalf("DefaultRuleSet error: %v", err)
	}
	scanner, err := NewScanner(set, Options{})
	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}
	return scanner
}

func TestScanEmptyFileSet(t *testing.T) {
	scanner := newDefaultScanner(t)
	result := scanner.Scan(nil)

	if result.TotalMatches() != 0 {
		t.Fatalf("expected no matches, got %d", result.TotalMatches())
	}
	for _, category := range domain.Categories {
		if result.HasMatches(category) {
			t.Fatalf("category %s should be empty", category)
		}
		cov, ok := result.Coverage[category]
		if !ok {
			t.Fatalf("missing coverage for %s", category)
		}
		if cov.Matched != 0 || cov.Covered {
			t.Fatalf("unexpected coverage for %s: %+v", category, cov)
		}
	}
	if result.FilesScanned != 0 || len(result.Warnings) != 0 {
		t.Fatalf("unexpected bookkeeping: %+v", result)
	}
}

func TestScanDynamicCodeScenario(t *testing.T) {
	scanner := newDefaultScanner(t)
	result := scanner.Scan([]domain.SourceFile{{Path: "background.js", Content: []byte(dynamicSource)}})

	got := result.MatchedRuleIDs(domain.CategoryDynamicCode)
	want := []string{"dce-eval", "dce-new-function", "dce-settimeout-string", "dce-setinterval-string"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("matched rules mismatch (-want +got):\n%s", diff)
	}

	cov := result.Coverage[domain.CategoryDynamicCode]
	if cov.Matched != 4 || cov.Total != 5 {
		t.Fatalf("unexpected coverage counts: %+v", cov)
	}
	if cov.Ratio < 0.8 || !cov.Covered {
		t.Fatalf("expected coverage >= 0.8 and covered, got %+v", cov)
	}

	first := result.Matches[domain.CategoryDynamicCode][0]
	if first.File != "background.js" || first.Line != 3 {
		t.Fatalf("unexpected location: %+v", first)
	}
	if !strings.Contains(first.Evidence, "eval(payload)") {
		t.Fatalf("evidence missing match text: %q", first.Evidence)
	}
}

func TestScanBenignScenario(t *testing.T) {
	scanner := newDefaultScanner(t)
	result := scanner.Scan([]domain.SourceFile{{Path: "popup.js", Content: []byte(benignSource)}})

	for _, category := range []domain.Category{
		domain.CategoryDynamicCode,
		domain.CategoryPermissionAbuse,
		domain.CategoryKeylogging,
	} {
		if result.HasMatches(category) {
			t.Fatalf("category %s should have no matches, got %+v", category, result.Matches[category])
		}
	}
	if result.FilesScanned != 1 {
		t.Fatalf("expected one file scanned, got %d", result.FilesScanned)
	}
}

func TestScanCaseInsensitiveLiteral(t *testing.T) {
	scanner := newDefaultScanner(t)
	src := "var s = STRING.FROMCHARCODE(72, 105); s = String.fromCharCode(33);"
	result := scanner.Scan([]domain.SourceFile{{Path: "a.js", Content: []byte(src)}})

	matches := result.Matches[domain.CategoryObfuscation]
	if len(matches) != 1 || matches[0].RuleID != "obf-charcode" {
		t.Fatalf("expected obf-charcode match, got %+v", matches)
	}
	if matches[0].Occurrences != 2 {
		t.Fatalf("expected 2 occurrences, got %d", matches[0].Occurrences)
	}
}

func TestScanSkipsUndecodableFiles(t *testing.T) {
	scanner, err := NewScanner(mustDefaultSet(t), Options{MaxFileBytes: 64})
	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}
	files := []domain.SourceFile{
		{Path: "icon.png", Content: []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}},
		{Path: "latin1.js", Content: []byte{'e', 'v', 'a', 'l', 0xff, 0xfe}},
		{Path: "huge.js", Content: []byte(strings.Repeat("a", 65))},
		{Path: "ok.js", Content: []byte("\xef\xbb\xbfeval(x)")},
	}
	result := scanner.Scan(files)

	gotFiles := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		gotFiles = append(gotFiles, w.File)
	}
	if diff := cmp.Diff([]string{"icon.png", "latin1.js", "huge.js"}, gotFiles); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
	if result.FilesScanned != 1 {
		t.Fatalf("expected one file scanned, got %d", result.FilesScanned)
	}
	if ids := result.MatchedRuleIDs(domain.CategoryDynamicCode); len(ids) != 1 || ids[0] != "dce-eval" {
		t.Fatalf("expected dce-eval after BOM strip, got %v", ids)
	}
}

func TestScanMergesInFileOrder(t *testing.T) {
	scanner := newDefaultScanner(t)
	files := make([]domain.SourceFile, 0, 20)
	for i := 0; i < 20; i++ {
		files = append(files, domain.SourceFile{
			Path:    "f" + strings.Repeat("x", i) + ".js",
			Content: []byte("eval(a)"),
		})
	}
	result := scanner.Scan(files)

	matches := result.Matches[domain.CategoryDynamicCode]
	if len(matches) != len(files) {
		t.Fatalf("expected %d matches, got %d", len(files), len(matches))
	}
	for i, m := range matches {
		if m.File != files[i].Path {
			t.Fatalf("match %d from %s, want %s", i, m.File, files[i].Path)
		}
	}
	if cov := result.Coverage[domain.CategoryDynamicCode]; cov.Matched != 1 {
		t.Fatalf("distinct rule coverage should be 1, got %+v", cov)
	}
}

func TestScanBoundedWorkersMatchSerialScan(t *testing.T) {
	set, err := DefaultRuleSet()
	if err != nil {
		t.Fatalf("DefaultRuleSet error: %v", err)
	}
	files := make([]domain.SourceFile, 0, 200)
	for i := 0; i < 200; i++ {
		src := benignSource
		if i%3 == 0 {
			src = dynamicSource
		}
		files = append(files, domain.SourceFile{Path: "src/" + strings.Repeat("d", i%7) + "/" + string(rune('a'+i%26)) + ".js", Content: []byte(src)})
	}

	serial, err := NewScanner(set, Options{Workers: 1})
	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}
	pooled, err := NewScanner(set, Options{Workers: 3})
	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	want := serial.Scan(files)
	got := pooled.Scan(files)
	if got.FilesScanned != len(files) {
		t.Fatalf("FilesScanned = %d, want %d", got.FilesScanned, len(files))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pooled scan differs from serial scan (-want +got):\n%s", diff)
	}
}

func TestSnippetCollapsesAndCaps(t *testing.T) {
	text := strings.Repeat("é", 100) + "\n\t eval(x) \n" + strings.Repeat("z", 300)
	start := strings.Index(text, "eval")
	got := snippet(text, start, start+len("eval("))

	if strings.ContainsAny(got, "\n\t") {
		t.Fatalf("snippet should be single-lined: %q", got)
	}
	if !strings.Contains(got, "eval(x)") {
		t.Fatalf("snippet missing match: %q", got)
	}
	if n := len([]rune(got)); n > domain.MaxEvidenceRunes {
		t.Fatalf("snippet too long: %d runes", n)
	}
}

func TestNewScannerRejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad regex", "version: x\ncategories:\n  obfuscation:\n    - id: bad\n      signature: '(unclosed'\n      weight: 1\n"},
		{"unknown category", "version: x\ncategories:\n  telepathy:\n    - id: t\n      signature: 'x'\n      weight: 1\n"},
		{"duplicate id", "version: x\ncategories:\n  obfuscation:\n    - id: a\n      signature: 'x'\n      weight: 1\n  keylogging:\n    - id: a\n      signature: 'y'\n      weight: 1\n"},
		{"empty signature", "version: x\ncategories:\n  obfuscation:\n    - id: a\n      signature: ''\n      weight: 1\n"},
		{"negative weight", "version: x\ncategories:\n  obfuscation:\n    - id: a\n      signature: 'x'\n      weight: -3\n"},
		{"negative threshold", "version: x\nacceptance_threshold: -0.2\ncategories:\n  obfuscation:\n    - id: a\n      signature: 'x'\n      weight: 1\n"},
		{"threshold", "version: x\nacceptance_threshold: 1.5\ncategories:\n  obfuscation:\n    - id: a\n      signature: 'x'\n      weight: 1\n"},
		{"unknown kind", "version: x\ncategories:\n  obfuscation:\n    - id: a\n      signature: 'x'\n      kind: glob\n      weight: 1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			set, err := ParseRuleSet([]byte(tc.yaml))
			if err == nil {
				_, err = NewScanner(set, Options{})
			}
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, domain.ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
			var ruleErr *RuleError
			if !errors.As(err, &ruleErr) {
				t.Fatalf("expected *RuleError, got %T", err)
			}
		})
	}
}

func TestLoadRuleSetMissingFileUsesDefaults(t *testing.T) {
	set, err := LoadRuleSet(t.TempDir() + "/absent.yaml")
	if err != nil {
		t.Fatalf("LoadRuleSet error: %v", err)
	}
	if set.Version == "" || len(set.Categories) != len(domain.Categories) {
		t.Fatalf("expected embedded defaults, got version %q with %d categories", set.Version, len(set.Categories))
	}
	for category, rules := range set.Categories {
		for _, rule := range rules {
			if rule.Category != category || rule.Kind == "" {
				t.Fatalf("rule %s not normalised: %+v", rule.ID, rule)
			}
		}
	}
}

func TestDefaultStringEvalWeightsReachHigh(t *testing.T) {
	set, err := DefaultRuleSet()
	if err != nil {
		t.Fatalf("DefaultRuleSet error: %v", err)
	}
	evalStyle := map[string]bool{
		"dce-eval":               true,
		"dce-new-function":       true,
		"dce-settimeout-string":  true,
		"dce-setinterval-string": true,
	}
	sum, found := 0, 0
	for _, rule := range set.Categories[domain.CategoryDynamicCode] {
		if evalStyle[rule.ID] {
			sum += rule.Weight
			found++
		}
	}
	if found != len(evalStyle) {
		t.Fatalf("found %d of %d eval-style rules", found, len(evalStyle))
	}
	if high := domain.DefaultThresholds().High; sum < high {
		t.Fatalf("eval-style weights sum to %d, below the HIGH threshold %d", sum, high)
	}
}

func TestRulesAreReturnedInCategoryOrder(t *testing.T) {
	scanner := newDefaultScanner(t)
	rules := scanner.Rules()
	if len(rules) == 0 {
		t.Fatalf("expected rules")
	}
	rank := make(map[domain.Category]int)
	for i, c := range domain.Categories {
		rank[c] = i
	}
	for i := 1; i < len(rules); i++ {
		if rank[rules[i].Category] < rank[rules[i-1].Category] {
			t.Fatalf("rule %s out of category order", rules[i].ID)
		}
	}
	if scanner.Version() != "2025.10" {
		t.Fatalf("unexpected version %q", scanner.Version())
	}
}

func mustDefaultSet(t *testing.T) domain.RuleSet {
	t.Helper()
	set, err := DefaultRuleSet()
	if err != nil {
		t.Fatalf("DefaultRuleSet error: %v", err)
	}
	return set
}

func TestFingerprintTracksRuleEdits(t *testing.T) {
	build := func(t *testing.T, doc string, opts Options) *Scanner {
		t.Helper()
		set, err := ParseRuleSet([]byte(doc))
		if err != nil {
			t.Fatalf("ParseRuleSet error: %v", err)
		}
		scanner, err := NewScanner(set, opts)
		if err != nil {
			t.Fatalf("NewScanner error: %v", err)
		}
		return scanner
	}
	original := "version: v1\ncategories:\n  dynamic-code-execution:\n    - id: a\n      signature: 'eval\\('\n      weight: 80\n"
	edited := "version: v1\ncategories:\n  dynamic-code-execution:\n    - id: a\n      signature: 'nomatch'\n      weight: 80\n"
	reweighted := "version: v1\ncategories:\n  dynamic-code-execution:\n    - id: a\n      signature: 'eval\\('\n      weight: 1\n"

	base := build(t, original, Options{})
	if base.Fingerprint() != build(t, original, Options{}).Fingerprint() {
		t.Fatalf("fingerprint should be stable for identical rules")
	}
	if base.Fingerprint() == build(t, edited, Options{}).Fingerprint() {
		t.Fatalf("edited signature under the same version kept the fingerprint")
	}
	if base.Fingerprint() == build(t, reweighted, Options{}).Fingerprint() {
		t.Fatalf("edited weight under the same version kept the fingerprint")
	}
	if base.Fingerprint() == build(t, original, Options{AcceptanceThreshold: 0.5}).Fingerprint() {
		t.Fatalf("threshold change kept the fingerprint")
	}
	if base.Fingerprint() != build(t, original, Options{AcceptanceThreshold: domain.DefaultAcceptanceThreshold}).Fingerprint() {
		t.Fatalf("explicit default threshold should match the implicit one")
	}
}
