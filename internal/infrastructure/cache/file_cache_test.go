package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/extscan-go/internal/domain"
)

func sampleResult() domain.ScanResult {
	return domain.ScanResult{
		Matches: map[domain.Category][]domain.MatchResult{
			domain.CategoryDynamicCode: {{RuleID: "dce-eval", Category: domain.CategoryDynamicCode, File: "a.js", Line: 1, Evidence: "eval(x)", Occurrences: 1, Weight: 20}},
		},
		Coverage: map[domain.Category]domain.Coverage{
			domain.CategoryDynamicCode: {Matched: 1, Total: 5, Ratio: 0.2},
		},
		FilesScanned:        1,
		AcceptanceThreshold: 0.7,
		RulesVersion:        "test",
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	c := NewFileCache(t.TempDir(), time.Hour, 10)
	entry := domain.CacheEntry{Key: "abc", Result: sampleResult(), CreatedAt: time.Now().UTC()}
	if err := c.Set(entry); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, ok, err := c.Get("abc")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if diff := cmp.Diff(entry, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := c.Get("missing"); ok {
		t.Fatalf("unexpected hit for missing key")
	}
}

func TestFileCacheExpires(t *testing.T) {
	c := NewFileCache(t.TempDir(), time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }
	if err := c.Set(domain.CacheEntry{Key: "k", Result: sampleResult()}); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok, err := c.Get("k"); ok || err != nil {
		t.Fatalf("expected expired miss, got ok=%v err=%v", ok, err)
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed")
	}
}

func TestFileCacheEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, time.Hour, 2)
	for i, key := range []string{"first", "second", "third"} {
		if err := c.Set(domain.CacheEntry{Key: key, Result: sampleResult()}); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		old := time.Now().Add(time.Duration(i-10) * time.Minute)
		_ = os.Chtimes(filepath.Join(dir, key+".json"), old, old)
	}
	if n := c.Len(); n > 2 {
		t.Fatalf("expected at most 2 entries, got %d", n)
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, time.Hour, 10)
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, ok, err := c.Get("bad"); ok || err != nil {
		t.Fatalf("corrupt entry should be a miss, got ok=%v err=%v", ok, err)
	}
}

func TestKeyDependsOnContentAndVersion(t *testing.T) {
	files := []domain.SourceFile{{Path: "a.js", Content: []byte("eval(1)")}}
	base := Key("v1", files)
	if base != Key("v1", []domain.SourceFile{{Path: "a.js", Content: []byte("eval(1)")}}) {
		t.Fatalf("key should be deterministic")
	}
	if base == Key("v2", files) {
		t.Fatalf("key should change with rules version")
	}
	if base == Key("v1", []domain.SourceFile{{Path: "a.js", Content: []byte("eval(2)")}}) {
		t.Fatalf("key should change with content")
	}
}
