package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/doeshing/extscan-go/assets"
	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// ErrInvalidManifest is returned when the manifest fails schema validation.
var ErrInvalidManifest = errors.New("invalid manifest")

// Parser extracts permission fields from manifest.json documents.
type Parser struct {
	schema *gojsonschema.Schema
}

type document struct {
	Name                    string   `json:"name"`
	Version                 string   `json:"version"`
	ManifestVersion         int      `json:"manifest_version"`
	Permissions             []string `json:"permissions"`
	OptionalPermissions     []string `json:"optional_permissions"`
	HostPermissions         []string `json:"host_permissions"`
	OptionalHostPermissions []string `json:"optional_host_permissions"`
}

// NewParser compiles the embedded manifest schema.
func NewParser() (*Parser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(assets.ManifestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// Parse validates data and returns the deduplicated permission sets. Manifest V2 lists host
// match patterns inside "permissions"; those entries are moved to HostPermissions. Optional
// grants of either kind are merged with the required ones.
func (p *Parser) Parse(data []byte) (domain.ManifestSummary, error) {
	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return domain.ManifestSummary{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return domain.ManifestSummary{}, fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(reasons, "; "))
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ManifestSummary{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	summary := domain.ManifestSummary{
		Name:            doc.Name,
		Version:         doc.Version,
		ManifestVersion: doc.ManifestVersion,
		Permissions:     []string{},
		HostPermissions: []string{},
	}
	perms := newOrderedSet()
	hosts := newOrderedSet()
	for _, entry := range append(append([]string{}, doc.Permissions...), doc.OptionalPermissions...) {
		if IsHostPattern(entry) {
			hosts.add(entry)
			continue
		}
		perms.add(entry)
	}
	for _, entry := range append(append([]string{}, doc.HostPermissions...), doc.OptionalHostPermissions...) {
		hosts.add(entry)
	}
	summary.Permissions = append(summary.Permissions, perms.items...)
	summary.HostPermissions = append(summary.HostPermissions, hosts.items...)
	return summary, nil
}

// IsHostPattern reports whether entry is a URL match pattern rather than an API permission.
func IsHostPattern(entry string) bool {
	entry = strings.TrimSpace(entry)
	return entry == "<all_urls>" || strings.Contains(entry, "://")
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(value string) {
	value = strings.TrimSpace(value)
	if value == "" || s.seen[value] {
		return
	}
	s.seen[value] = true
	s.items = append(s.items, value)
}

var _ ports.ManifestParser = (*Parser)(nil)
