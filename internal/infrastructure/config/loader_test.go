package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/extscan-go/internal/domain"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(domain.SecureFilePermissions), info.Mode().Perm())

	again, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.Scoring.Thresholds, again.Scoring.Thresholds)
	assert.Equal(t, cfg.Permissions.Dangerous, again.Permissions.Dangerous)
}

func TestLoadHydratesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
rules:
  acceptance_threshold: 0.5
scan:
  workers: 8
monitor:
  listen_addr: "0.0.0.0:9000"
history:
  enabled: false
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.ConfigFormatVersion)
	assert.Equal(t, 0.5, cfg.Rules.AcceptanceThreshold)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, int64(domain.DefaultMaxFileBytes), cfg.Scan.MaxFileBytes)
	assert.Equal(t, "0.0.0.0:9000", cfg.Monitor.ListenAddr)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, domain.DefaultThresholds(), cfg.Scoring.Thresholds)
	assert.Equal(t, domain.DefaultBehaviorWeights(), cfg.Scoring.BehaviorWeights)
	assert.Equal(t, domain.DefaultCacheTTL.String(), cfg.Cache.TTL)
	assert.NotEmpty(t, cfg.Scan.Extensions)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: [unclosed"), 0o600))

	_, err := NewFileLoader(path).Load(context.Background())
	assert.Error(t, err)
}

func TestPathHonoursEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	t.Setenv(EnvConfigPath, path)

	assert.Equal(t, path, NewFileLoader("").Path())
	assert.Equal(t, "/explicit.yaml", NewFileLoader("/explicit.yaml").Path())
}
