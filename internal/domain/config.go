package domain

// Config mirrors ~/.extscan/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	Rules               RulesSettings      `yaml:"rules"`
	Scan                ScanSettings       `yaml:"scan"`
	Permissions         PermissionSettings `yaml:"permissions"`
	Scoring             ScoringSettings    `yaml:"scoring"`
	Monitor             MonitorSettings    `yaml:"monitor"`
	History             HistorySettings    `yaml:"history"`
	Cache               CacheSettings      `yaml:"cache"`
	Advisor             AdvisorSettings    `yaml:"advisor"`
}

// RulesSettings locates the signature rule set.
type RulesSettings struct {
	File                string  `yaml:"file"`
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"`
}

// ScanSettings controls the static scanner.
type ScanSettings struct {
	Workers      int      `yaml:"workers"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	Extensions   []string `yaml:"extensions"`
}

// PermissionSettings configures the permission evaluator.
type PermissionSettings struct {
	Dangerous          []string `yaml:"dangerous"`
	SensitiveData      []string `yaml:"sensitive_data"`
	BroadHostPatterns  []string `yaml:"broad_host_patterns"`
	ExcessiveThreshold int      `yaml:"excessive_threshold"`
}

// ScoringSettings configures the aggregator.
type ScoringSettings struct {
	Thresholds          Thresholds           `yaml:"thresholds"`
	PermissionPoints    int                  `yaml:"permission_points"`
	ElevatedHostPoints  int                  `yaml:"elevated_host_points"`
	ExcessivePoints     int                  `yaml:"excessive_points"`
	CategoryMultipliers map[Category]float64 `yaml:"category_multipliers,omitempty"`
	BehaviorWeights     BehaviorWeights      `yaml:"behavior_weights"`
}

// MonitorSettings configures the runtime monitor and its host transport.
type MonitorSettings struct {
	ListenAddr     string   `yaml:"listen_addr"`
	DenyHosts      []string `yaml:"deny_hosts"`
	ExportInterval string   `yaml:"export_interval"`
	BufferCapacity int      `yaml:"buffer_capacity"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// HistorySettings configures the report history store.
type HistorySettings struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// CacheSettings configures the scan-result cache.
type CacheSettings struct {
	Enabled    bool   `yaml:"enabled"`
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
}

// AdvisorSettings configures the optional LLM second opinion.
type AdvisorSettings struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	AuthEnvVar string `yaml:"auth_env_var"`
}
