package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
)

// Validate ensures config structure is consistent.
func Validate(cfg domain.Config) error {
	var errs []error
	for _, check := range []error{
		validateRules(cfg.Rules),
		validateScan(cfg.Scan),
		validatePermissions(cfg.Permissions),
		validateScoring(cfg.Scoring),
		validateMonitor(cfg.Monitor),
		validateHistory(cfg.History),
		validateCache(cfg.Cache),
		validateAdvisor(cfg.Advisor),
	} {
		if check != nil {
			errs = append(errs, check)
		}
	}
	return errors.Join(errs...)
}

func validateRules(rules domain.RulesSettings) error {
	t := rules.AcceptanceThreshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("rules.acceptance_threshold must be in [0,1], got %v", t)
	}
	return nil
}

func validateScan(scan domain.ScanSettings) error {
	if scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be > 0")
	}
	if scan.MaxFileBytes <= 0 {
		return fmt.Errorf("scan.max_file_bytes must be > 0")
	}
	for _, ext := range scan.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("scan.extensions entries must start with '.', got %q", ext)
		}
	}
	return nil
}

func validatePermissions(perms domain.PermissionSettings) error {
	if perms.ExcessiveThreshold <= 0 {
		return fmt.Errorf("permissions.excessive_threshold must be > 0")
	}
	return nil
}

func validateScoring(scoring domain.ScoringSettings) error {
	if err := scoring.Thresholds.Validate(); err != nil {
		return fmt.Errorf("scoring.thresholds: %w", err)
	}
	if scoring.PermissionPoints < 0 || scoring.ElevatedHostPoints < 0 || scoring.ExcessivePoints < 0 {
		return fmt.Errorf("scoring points must be >= 0")
	}
	for category, weight := range scoring.BehaviorWeights {
		if weight < 0 {
			return fmt.Errorf("scoring.behavior_weights.%s must be >= 0", category)
		}
	}
	for category, m := range scoring.CategoryMultipliers {
		if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
			return fmt.Errorf("scoring.category_multipliers.%s must be a finite value >= 0", category)
		}
	}
	return nil
}

func validateMonitor(mon domain.MonitorSettings) error {
	if _, _, err := net.SplitHostPort(mon.ListenAddr); err != nil {
		return fmt.Errorf("monitor.listen_addr invalid: %w", err)
	}
	interval, err := time.ParseDuration(mon.ExportInterval)
	if err != nil {
		return fmt.Errorf("monitor.export_interval invalid: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("monitor.export_interval must be > 0")
	}
	if mon.BufferCapacity <= 0 {
		return fmt.Errorf("monitor.buffer_capacity must be > 0")
	}
	return nil
}

func validateHistory(history domain.HistorySettings) error {
	if history.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must be >= 0")
	}
	return nil
}

func validateCache(cache domain.CacheSettings) error {
	if cache.TTL == "" {
		cache.TTL = "1h"
	}
	if _, err := time.ParseDuration(cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl invalid: %w", err)
	}
	if cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	return nil
}

func validateAdvisor(advisor domain.AdvisorSettings) error {
	if !advisor.Enabled {
		return nil
	}
	if advisor.Model == "" {
		return fmt.Errorf("advisor.model must be set when the advisor is enabled")
	}
	if advisor.AuthEnvVar == "" {
		return fmt.Errorf("advisor.auth_env_var must be set when the advisor is enabled")
	}
	return nil
}
