package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/infrastructure/monitor"
	"github.com/doeshing/extscan-go/internal/infrastructure/permissions"
	"github.com/doeshing/extscan-go/internal/pkg/filesystem"
	"github.com/doeshing/extscan-go/internal/ports"
)

// EnvConfigPath overrides the config location.
const EnvConfigPath = "EXTSCAN_CONFIG"

// FileLoader loads YAML configuration from ~/.extscan/config.yaml (overridable via EXTSCAN_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. A missing file is created with the defaults.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := writeDefault(path, cfg); err != nil {
				return domain.Config{}, err
			}
			return cfg, nil
		}
		return domain.Config{}, err
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, err
	}

	return hydrateDefaults(cfg), nil
}

// Path is the file Load reads.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filepath.Join(filesystem.AppDir(), "config.yaml")
}

// Save overwrites the config file with cfg.
func (l *FileLoader) Save(cfg domain.Config) error {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return err
	}
	return writeDefault(path, cfg)
}

func ensureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions)
}

func writeDefault(path string, cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, domain.SecureFilePermissions)
}

// DefaultConfig is the configuration written on first run.
func DefaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Rules: domain.RulesSettings{
			File:                filepath.Join(filesystem.AppDir(), "rules.yaml"),
			AcceptanceThreshold: domain.DefaultAcceptanceThreshold,
		},
		Scan: domain.ScanSettings{
			Workers:      domain.DefaultScanWorkers,
			MaxFileBytes: domain.DefaultMaxFileBytes,
			Extensions:   defaultScanExtensions(),
		},
		Permissions: domain.PermissionSettings{
			Dangerous:          permissions.DefaultDangerous(),
			SensitiveData:      permissions.DefaultSensitiveData(),
			BroadHostPatterns:  permissions.DefaultBroadHostPatterns(),
			ExcessiveThreshold: domain.DefaultExcessiveThreshold,
		},
		Scoring: domain.ScoringSettings{
			Thresholds:         domain.DefaultThresholds(),
			PermissionPoints:   domain.DefaultPermissionPoints,
			ElevatedHostPoints: domain.DefaultElevatedHostPoints,
			ExcessivePoints:    domain.DefaultExcessivePoints,
			BehaviorWeights:    domain.DefaultBehaviorWeights(),
		},
		Monitor: domain.MonitorSettings{
			ListenAddr:     domain.DefaultListenAddr,
			DenyHosts:      monitor.DefaultDenyHosts(),
			ExportInterval: domain.DefaultExportInterval.String(),
			BufferCapacity: domain.DefaultBufferCapacity,
		},
		History: domain.HistorySettings{
			Enabled:       true,
			RetentionDays: domain.DefaultHistoryRetainDays,
		},
		Cache: domain.CacheSettings{
			Enabled:    true,
			TTL:        domain.DefaultCacheTTL.String(),
			MaxEntries: domain.DefaultMaxCacheEntries,
		},
		Advisor: domain.AdvisorSettings{
			Enabled:    false,
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			AuthEnvVar: "OPENAI_API_KEY",
		},
	}
}

func defaultScanExtensions() []string {
	return []string{".js", ".mjs", ".cjs", ".ts", ".html", ".htm", ".json"}
}

// hydrateDefaults fills fields an older or hand-edited file left empty.
func hydrateDefaults(cfg domain.Config) domain.Config {
	defaults := DefaultConfig()
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = defaults.ConfigFormatVersion
	}
	cfg.Rules.File = filesystem.ExpandPath(cfg.Rules.File)
	if cfg.Rules.AcceptanceThreshold == 0 {
		cfg.Rules.AcceptanceThreshold = defaults.Rules.AcceptanceThreshold
	}
	if cfg.Scan.Workers == 0 {
		cfg.Scan.Workers = defaults.Scan.Workers
	}
	if cfg.Scan.MaxFileBytes == 0 {
		cfg.Scan.MaxFileBytes = defaults.Scan.MaxFileBytes
	}
	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = defaults.Scan.Extensions
	}
	if cfg.Permissions.ExcessiveThreshold == 0 {
		cfg.Permissions.ExcessiveThreshold = defaults.Permissions.ExcessiveThreshold
	}
	if cfg.Scoring.Thresholds == (domain.Thresholds{}) {
		cfg.Scoring.Thresholds = defaults.Scoring.Thresholds
	}
	if cfg.Scoring.PermissionPoints == 0 {
		cfg.Scoring.PermissionPoints = defaults.Scoring.PermissionPoints
	}
	if cfg.Scoring.ElevatedHostPoints == 0 {
		cfg.Scoring.ElevatedHostPoints = defaults.Scoring.ElevatedHostPoints
	}
	if cfg.Scoring.ExcessivePoints == 0 {
		cfg.Scoring.ExcessivePoints = defaults.Scoring.ExcessivePoints
	}
	if len(cfg.Scoring.BehaviorWeights) == 0 {
		cfg.Scoring.BehaviorWeights = defaults.Scoring.BehaviorWeights
	}
	if cfg.Monitor.ListenAddr == "" {
		cfg.Monitor.ListenAddr = defaults.Monitor.ListenAddr
	}
	if cfg.Monitor.ExportInterval == "" {
		cfg.Monitor.ExportInterval = defaults.Monitor.ExportInterval
	}
	if cfg.Monitor.BufferCapacity == 0 {
		cfg.Monitor.BufferCapacity = defaults.Monitor.BufferCapacity
	}
	cfg.History.Path = filesystem.ExpandPath(cfg.History.Path)
	if cfg.Cache.TTL == "" {
		cfg.Cache.TTL = defaults.Cache.TTL
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = defaults.Cache.MaxEntries
	}
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = defaults.Advisor.Model
	}
	if cfg.Advisor.AuthEnvVar == "" {
		cfg.Advisor.AuthEnvVar = defaults.Advisor.AuthEnvVar
	}
	return cfg
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
