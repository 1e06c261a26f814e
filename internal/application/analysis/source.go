package analysis

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/doeshing/extscan-go/internal/domain"
)

// ManifestFile is the manifest name expected at the package root.
const ManifestFile = "manifest.json"

// ErrEmptySource is returned when a package holds no scannable files and no manifest.
var ErrEmptySource = errors.New("no scannable files found")

// SourceOptions filter which files are read.
type SourceOptions struct {
	Extensions   []string
	MaxFileBytes int64
}

// LoadSource reads an unpacked extension directory or a .zip/.crx package.
// Paths in the result are slash-separated and relative to the package root.
func LoadSource(root string, opts SourceOptions) (domain.ExtensionSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return domain.ExtensionSource{}, err
	}

	var src domain.ExtensionSource
	if info.IsDir() {
		src, err = loadDir(root, opts)
	} else {
		src, err = loadArchive(root, opts)
	}
	if err != nil {
		return domain.ExtensionSource{}, err
	}
	if len(src.Files) == 0 && src.Manifest == nil {
		return domain.ExtensionSource{}, fmt.Errorf("%s: %w", root, ErrEmptySource)
	}
	src.Root = root
	src.ID = deriveID(root, info.IsDir(), src.Manifest)
	return src, nil
}

func loadDir(root string, opts SourceOptions) (domain.ExtensionSource, error) {
	var src domain.ExtensionSource
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		isManifest := rel == ManifestFile
		if !isManifest && !wanted(rel, opts.Extensions) {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		content, err := readLimited(f, opts.MaxFileBytes)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		collect(&src, rel, content, opts.Extensions)
		return nil
	})
	if err != nil {
		return domain.ExtensionSource{}, err
	}
	sortFiles(src.Files)
	return src, nil
}

func loadArchive(name string, opts SourceOptions) (domain.ExtensionSource, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return domain.ExtensionSource{}, fmt.Errorf("open package %s: %w", name, err)
	}
	defer zr.Close()

	var src domain.ExtensionSource
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rel := path.Clean(strings.TrimPrefix(entry.Name, "/"))
		if strings.HasPrefix(rel, "../") || hasSkippedDir(rel) {
			continue
		}
		isManifest := rel == ManifestFile
		if !isManifest && !wanted(rel, opts.Extensions) {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return domain.ExtensionSource{}, fmt.Errorf("open %s: %w", rel, err)
		}
		content, err := readLimited(rc, opts.MaxFileBytes)
		rc.Close()
		if err != nil {
			return domain.ExtensionSource{}, fmt.Errorf("read %s: %w", rel, err)
		}
		collect(&src, rel, content, opts.Extensions)
	}
	sortFiles(src.Files)
	return src, nil
}

func collect(src *domain.ExtensionSource, rel string, content []byte, extensions []string) {
	if rel == ManifestFile {
		src.Manifest = content
	}
	if wanted(rel, extensions) {
		src.Files = append(src.Files, domain.SourceFile{Path: rel, Content: content})
	}
}

// readLimited reads at most maxBytes+1 bytes so the scanner can still tell an oversize file apart.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	return io.ReadAll(io.LimitReader(r, maxBytes+1))
}

func wanted(rel string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(rel))
	for _, candidate := range extensions {
		if strings.ToLower(candidate) == ext {
			return true
		}
	}
	return false
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "_metadata"
}

func hasSkippedDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if skipDir(dir) {
			return true
		}
	}
	return false
}

func sortFiles(files []domain.SourceFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// deriveID uses the manifest name unless it is a locale placeholder, then the package base name.
func deriveID(root string, isDir bool, manifest []byte) string {
	if len(manifest) > 0 {
		var head struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(manifest, &head) == nil && head.Name != "" && !strings.HasPrefix(head.Name, "__MSG_") {
			return head.Name
		}
	}
	base := filepath.Base(filepath.Clean(root))
	if isDir {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
