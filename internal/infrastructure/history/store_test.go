package history

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/extscan-go/internal/domain"
)

type store interface {
	Save(domain.ReportRecord) (int64, error)
	Records(int, string) ([]domain.ReportRecord, error)
	Get(int64) (domain.ReportRecord, bool, error)
	Clear() error
	ExportJSON(string) error
	PruneOlderThan(int) error
	ExportEvents(context.Context, []domain.ClassifiedEvent) error
	EventCounts(string) (domain.BehaviorCounts, error)
}

func stores(t *testing.T) map[string]store {
	t.Helper()
	dir := t.TempDir()
	sqlite := NewSQLiteStore(filepath.Join(dir, "history.db"))
	require.False(t, sqlite.Degraded(), "sqlite store should open in a temp dir")
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]store{
		"sqlite": sqlite,
		"file":   NewFileStore(filepath.Join(dir, "history.jsonl")),
	}
}

func record(ext string, level domain.ThreatLevel, score int, at time.Time) domain.ReportRecord {
	return domain.ReportRecord{
		Timestamp:   at,
		ExtensionID: ext,
		Source:      "/tmp/" + ext,
		ThreatLevel: level,
		Score:       score,
		MatchCount:  2,
		Report: domain.RiskReport{
			ExtensionID:    ext,
			ThreatLevel:    level,
			AggregateScore: score,
			Categories: map[string]domain.CategoryResult{
				"obfuscation": {Matched: true, Score: score, Evidence: []string{"a.js:1 [obf-charcode] String.fromCharCode("}},
			},
			GeneratedAt: at.UTC(),
		},
	}
}

func TestStoreSaveAndQuery(t *testing.T) {
	now := time.Now()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id1, err := s.Save(record("ext-a", domain.ThreatLow, 12, now.Add(-2*time.Minute)))
			require.NoError(t, err)
			id2, err := s.Save(record("ext-b", domain.ThreatHigh, 75, now.Add(-time.Minute)))
			require.NoError(t, err)
			_, err = s.Save(record("ext-a", domain.ThreatMedium, 35, now))
			require.NoError(t, err)
			assert.Greater(t, id2, id1)

			all, err := s.Records(0, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, domain.ThreatMedium, all[0].ThreatLevel, "newest first")

			limited, err := s.Records(1, "ext-a")
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, 35, limited[0].Score)

			got, ok, err := s.Get(id2)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "ext-b", got.ExtensionID)
			assert.Equal(t, 75, got.Report.AggregateScore)
			assert.Equal(t, []string{"a.js:1 [obf-charcode] String.fromCharCode("}, got.Report.Categories["obfuscation"].Evidence)

			_, ok, err = s.Get(9999)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStorePruneAndClear(t *testing.T) {
	now := time.Now()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Save(record("old", domain.ThreatSafe, 0, now.AddDate(0, 0, -40)))
			require.NoError(t, err)
			_, err = s.Save(record("new", domain.ThreatSafe, 0, now))
			require.NoError(t, err)

			require.NoError(t, s.PruneOlderThan(30))
			records, err := s.Records(0, "")
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "new", records[0].ExtensionID)

			require.NoError(t, s.PruneOlderThan(0))
			require.NoError(t, s.Clear())
			records, err = s.Records(0, "")
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestStoreExportJSON(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				_, err := s.Save(record("ext", domain.ThreatLow, 10+i, time.Now()))
				require.NoError(t, err)
			}
			dest := filepath.Join(t.TempDir(), "out", "export.jsonl")
			require.NoError(t, s.ExportJSON(dest))

			file, err := os.Open(dest)
			require.NoError(t, err)
			defer file.Close()
			lines := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				lines++
			}
			assert.Equal(t, 3, lines)
		})
	}
}

func TestStoreExportEvents(t *testing.T) {
	at := time.Now()
	batch := []domain.ClassifiedEvent{
		{Event: domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindKeyDown, Timestamp: at}, Category: domain.BehaviorKeylogging, ClassifiedAt: at},
		{Event: domain.BehaviorEvent{ExtensionID: "ext-a", Kind: domain.KindFetch, Payload: map[string]string{"url": "https://pastebin.com/x"}, Timestamp: at}, Category: domain.BehaviorSuspiciousRequests, ClassifiedAt: at},
		{Event: domain.BehaviorEvent{ExtensionID: "ext-b", Kind: domain.KindKeyUp, Timestamp: at}, Category: domain.BehaviorKeylogging, ClassifiedAt: at},
	}
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.ExportEvents(context.Background(), batch))
			require.NoError(t, s.ExportEvents(context.Background(), nil))

			all, err := s.EventCounts("")
			require.NoError(t, err)
			assert.Equal(t, 2, all[domain.BehaviorKeylogging])
			assert.Equal(t, 1, all[domain.BehaviorSuspiciousRequests])

			extA, err := s.EventCounts("ext-a")
			require.NoError(t, err)
			assert.Equal(t, 1, extA[domain.BehaviorKeylogging])
			assert.Equal(t, 0, extA[domain.BehaviorClickjacking])
		})
	}
}

func TestSQLiteStoreDegradesToFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewSQLiteStore(filepath.Join(blocker, "history.db"))
	assert.True(t, s.Degraded())
	assert.Equal(t, filepath.Join(blocker, "history.jsonl"), s.Path())
}
