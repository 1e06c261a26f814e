package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/pkg/filesystem"
	"github.com/doeshing/extscan-go/internal/ports"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_unix INTEGER NOT NULL,
	extension_id TEXT NOT NULL,
	source TEXT,
	threat_level TEXT,
	score INTEGER,
	match_count INTEGER,
	warning_count INTEGER,
	report_json TEXT
)`,
	`CREATE INDEX IF NOT EXISTS reports_extension ON reports(extension_id)`,
	`CREATE TABLE IF NOT EXISTS behavior_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	extension_id TEXT NOT NULL,
	kind TEXT,
	category TEXT,
	payload_json TEXT,
	observed_unix INTEGER,
	classified_unix INTEGER
)`,
}

// SQLiteStore persists reports and exported behavior events in a SQLite database.
// When the database cannot be opened it degrades to a FileStore next to it.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	mu       sync.Mutex
	fallback *FileStore
}

// DefaultPath is ~/.extscan/history/history.db.
func DefaultPath() string {
	return filepath.Join(filesystem.AppDir(), "history", "history.db")
}

// NewSQLiteStore opens (or creates) the database at path, or DefaultPath when empty.
func NewSQLiteStore(path string) *SQLiteStore {
	path = filesystem.ExpandPath(path)
	if path == "" {
		path = DefaultPath()
	}
	fallback := NewFileStore(strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl")
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return &SQLiteStore{path: path, fallback: fallback}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return &SQLiteStore{path: path, fallback: fallback}
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		_ = db.Close()
		return &SQLiteStore{path: path, fallback: fallback}
	}
	return store
}

func (s *SQLiteStore) init() error {
	if s.db == nil {
		return os.ErrInvalid
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Degraded reports whether the store fell back to the JSONL file.
func (s *SQLiteStore) Degraded() bool {
	return s.db == nil
}

// Save inserts a report and returns its id.
func (s *SQLiteStore) Save(record domain.ReportRecord) (int64, error) {
	if s.db == nil {
		return s.fallback.Save(record)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	data, err := json.Marshal(record.Report)
	if err != nil {
		return 0, fmt.Errorf("encode report: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`INSERT INTO reports
		(created_unix, extension_id, source, threat_level, score, match_count, warning_count, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UnixNano(),
		record.ExtensionID,
		record.Source,
		string(record.ThreatLevel),
		record.Score,
		record.MatchCount,
		record.WarningCount,
		string(data),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectReports = `SELECT id, created_unix, extension_id, source, threat_level, score, match_count, warning_count, report_json FROM reports`

// Records returns the newest reports first, optionally filtered by extension id.
func (s *SQLiteStore) Records(limit int, extensionID string) ([]domain.ReportRecord, error) {
	if s.db == nil {
		return s.fallback.Records(limit, extensionID)
	}
	builder := strings.Builder{}
	builder.WriteString(selectReports)
	var args []interface{}
	if extensionID != "" {
		builder.WriteString(" WHERE extension_id = ?")
		args = append(args, extensionID)
	}
	builder.WriteString(" ORDER BY id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.Query(builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.ReportRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one report by id.
func (s *SQLiteStore) Get(id int64) (domain.ReportRecord, bool, error) {
	if s.db == nil {
		return s.fallback.Get(id)
	}
	rec, err := scanRecord(s.db.QueryRow(selectReports+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReportRecord{}, false, nil
	}
	if err != nil {
		return domain.ReportRecord{}, false, err
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (domain.ReportRecord, error) {
	var rec domain.ReportRecord
	var created int64
	var level, source, reportJSON sql.NullString
	if err := row.Scan(&rec.ID, &created, &rec.ExtensionID, &source, &level, &rec.Score, &rec.MatchCount, &rec.WarningCount, &reportJSON); err != nil {
		return domain.ReportRecord{}, err
	}
	rec.Timestamp = time.Unix(0, created)
	rec.Source = source.String
	rec.ThreatLevel = domain.ThreatLevel(level.String)
	if reportJSON.Valid && reportJSON.String != "" {
		if err := json.Unmarshal([]byte(reportJSON.String), &rec.Report); err != nil {
			return domain.ReportRecord{}, fmt.Errorf("decode report %d: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// Clear deletes all reports and exported events.
func (s *SQLiteStore) Clear() error {
	if s.db == nil {
		return s.fallback.Clear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM reports"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM behavior_events")
	return err
}

// PruneOlderThan deletes reports and events older than days. Zero or negative keeps everything.
func (s *SQLiteStore) PruneOlderThan(days int) error {
	if days <= 0 {
		return nil
	}
	if s.db == nil {
		return s.fallback.PruneOlderThan(days)
	}
	cutoff := time.Now().AddDate(0, 0, -days).UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM reports WHERE created_unix < ?", cutoff); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM behavior_events WHERE classified_unix < ?", cutoff)
	return err
}

// ExportJSON writes every report to dest as JSON lines, newest first.
func (s *SQLiteStore) ExportJSON(dest string) error {
	records, err := s.Records(0, "")
	if err != nil {
		return err
	}
	return writeJSONL(dest, records)
}

// ExportEvents stores a batch of classified events in one transaction.
func (s *SQLiteStore) ExportEvents(ctx context.Context, batch []domain.ClassifiedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	if s.db == nil {
		return s.fallback.ExportEvents(ctx, batch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO behavior_events
		(extension_id, kind, category, payload_json, observed_unix, classified_unix)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, ev := range batch {
		payload, err := json.Marshal(ev.Event.Payload)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ev.Event.ExtensionID,
			ev.Event.Kind,
			string(ev.Category),
			string(payload),
			ev.Event.Timestamp.UnixNano(),
			ev.ClassifiedAt.UnixNano(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// EventCounts returns exported event totals per category, optionally for one extension.
func (s *SQLiteStore) EventCounts(extensionID string) (domain.BehaviorCounts, error) {
	if s.db == nil {
		return s.fallback.EventCounts(extensionID)
	}
	query := "SELECT category, COUNT(*) FROM behavior_events"
	var args []interface{}
	if extensionID != "" {
		query += " WHERE extension_id = ?"
		args = append(args, extensionID)
	}
	query += " GROUP BY category"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := domain.NewBehaviorCounts()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[domain.BehaviorCategory(category)] = n
	}
	return counts, rows.Err()
}

// Path returns the database path, or the fallback file when degraded.
func (s *SQLiteStore) Path() string {
	if s.db == nil {
		return s.fallback.Path()
	}
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ ports.ReportRepository = (*SQLiteStore)(nil)
	_ ports.EventExporter    = (*SQLiteStore)(nil)
)
