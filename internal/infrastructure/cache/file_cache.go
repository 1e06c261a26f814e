package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/pkg/filesystem"
	"github.com/doeshing/extscan-go/internal/ports"
)

// FileCache stores scan results as JSON blobs addressed by content digest.
type FileCache struct {
	dir        string
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// DefaultDir is ~/.extscan/cache/scans.
func DefaultDir() string {
	return filepath.Join(filesystem.AppDir(), "cache", "scans")
}

// NewFileCache returns a cache rooted at dir (DefaultDir when empty). Non-positive
// ttl or maxEntries select the defaults.
func NewFileCache(dir string, ttl time.Duration, maxEntries int) *FileCache {
	if dir == "" {
		dir = DefaultDir()
	}
	if ttl <= 0 {
		ttl = domain.DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = domain.DefaultMaxCacheEntries
	}
	return &FileCache{dir: filesystem.ExpandPath(dir), maxEntries: maxEntries, ttl: ttl, now: time.Now}
}

// Key derives a cache key from the rule-set fingerprint and every file's path and content.
func Key(rulesFingerprint string, files []domain.SourceFile) string {
	h := sha256.New()
	h.Write([]byte(rulesFingerprint))
	h.Write([]byte{0})
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		sum := sha256.Sum256(f.Content)
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Key implements ports.ScanCache.
func (c *FileCache) Key(rulesFingerprint string, files []domain.SourceFile) string {
	return Key(rulesFingerprint, files)
}

// Get retrieves a cache entry. Expired entries are removed and reported as misses.
func (c *FileCache) Get(key string) (domain.CacheEntry, bool, error) {
	if key == "" {
		return domain.CacheEntry{}, false, nil
	}
	path := c.pathFor(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.CacheEntry{}, false, nil
		}
		return domain.CacheEntry{}, false, err
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return domain.CacheEntry{}, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl {
		_ = os.Remove(path)
		return domain.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set stores a cache entry.
func (c *FileCache) Set(entry domain.CacheEntry) error {
	if entry.Key == "" {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, domain.DirectoryPermissions); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.pathFor(entry.Key), data, domain.SecureFilePermissions); err != nil {
		return err
	}
	return c.evictIfNeeded()
}

// TTL returns the entry lifetime.
func (c *FileCache) TTL() time.Duration {
	return c.ttl
}

// Dir exposes the cache directory path.
func (c *FileCache) Dir() string {
	return c.dir
}

// Clear removes all cached entries.
func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(c.dir)
}

// Len counts cached entries (best-effort).
func (c *FileCache) Len() int {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, f := range files {
		if !f.IsDir() && filepath.Ext(f.Name()) == ".json" {
			n++
		}
	}
	return n
}

func (c *FileCache) pathFor(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *FileCache) evictIfNeeded() error {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(files) <= c.maxEntries {
		return nil
	}
	type fileInfo struct {
		name string
		mod  time.Time
	}
	var infos []fileInfo
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: f.Name(), mod: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod.Before(infos[j].mod) })
	for len(infos) > c.maxEntries {
		_ = os.Remove(filepath.Join(c.dir, infos[0].name))
		infos = infos[1:]
	}
	return nil
}

var _ ports.ScanCache = (*FileCache)(nil)
