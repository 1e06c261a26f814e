package assets

import (
	_ "embed"
)

// DefaultRulesYAML contains the embedded default signature rule set.
//
//go:embed defaults/rules.yaml
var DefaultRulesYAML []byte

// ManifestSchemaJSON is the JSON schema for the manifest permission fields.
//
//go:embed defaults/manifest.schema.json
var ManifestSchemaJSON []byte
