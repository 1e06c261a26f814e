package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// FileStore appends reports to a jsonl file. Exported events go to a sibling
// "<name>.events.jsonl" file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save appends record with the next id.
func (f *FileStore) Save(record domain.ReportRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.load()
	if err != nil {
		return 0, err
	}
	var maxID int64
	for _, rec := range records {
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	record.ID = maxID + 1
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := appendJSONL(f.path, record); err != nil {
		return 0, err
	}
	return record.ID, nil
}

// Records returns the newest reports first, optionally filtered by extension id.
func (f *FileStore) Records(limit int, extensionID string) ([]domain.ReportRecord, error) {
	f.mu.Lock()
	records, err := f.load()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []domain.ReportRecord
	for i := len(records) - 1; i >= 0; i-- {
		if extensionID != "" && records[i].ExtensionID != extensionID {
			continue
		}
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Get returns one report by id.
func (f *FileStore) Get(id int64) (domain.ReportRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.load()
	if err != nil {
		return domain.ReportRecord{}, false, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return domain.ReportRecord{}, false, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Clear removes the report and event files.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range []string{f.path, f.eventsPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// PruneOlderThan rewrites the report file without records older than days.
func (f *FileStore) PruneOlderThan(days int) error {
	if days <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.load()
	if err != nil || len(records) == 0 {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	kept := records[:0]
	for _, rec := range records {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	tmp := f.path + ".tmp"
	if err := writeJSONL(tmp, kept); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// ExportJSON writes every report to dest as JSON lines, newest first.
func (f *FileStore) ExportJSON(dest string) error {
	records, err := f.Records(0, "")
	if err != nil {
		return err
	}
	return writeJSONL(dest, records)
}

// ExportEvents appends a batch of classified events.
func (f *FileStore) ExportEvents(_ context.Context, batch []domain.ClassifiedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range batch {
		if err := appendJSONL(f.eventsPath(), ev); err != nil {
			return err
		}
	}
	return nil
}

// EventCounts returns exported event totals per category, optionally for one extension.
func (f *FileStore) EventCounts(extensionID string) (domain.BehaviorCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := domain.NewBehaviorCounts()
	file, err := os.Open(f.eventsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return counts, nil
		}
		return nil, err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		var ev domain.ClassifiedEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if extensionID == "" || ev.Event.ExtensionID == extensionID {
			counts[ev.Category]++
		}
	}
	return counts, scanner.Err()
}

func (f *FileStore) eventsPath() string {
	return strings.TrimSuffix(f.path, filepath.Ext(f.path)) + ".events.jsonl"
}

// load reads all records in insertion order, skipping corrupt lines.
func (f *FileStore) load() ([]domain.ReportRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	var records []domain.ReportRecord
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var rec domain.ReportRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func appendJSONL(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.SecureFilePermissions)
	if err != nil {
		return err
	}
	defer file.Close()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

func writeJSONL(dest string, records []domain.ReportRecord) error {
	if err := os.MkdirAll(filepath.Dir(dest), domain.DirectoryPermissions); err != nil {
		return err
	}
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := file.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ ports.ReportRepository = (*FileStore)(nil)
	_ ports.EventExporter    = (*FileStore)(nil)
)
