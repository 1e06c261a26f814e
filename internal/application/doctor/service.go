package doctor

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/doeshing/extscan-go/internal/application/config"
	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Scanner        ports.SignatureScanner
	History        ports.ReportRepository
	Monitor        ports.BehaviorMonitor
	LookupEnv      func(string) string
}

type degradable interface {
	Degraded() bool
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail("Config file", err.Error()))
	} else {
		checks = append(checks, ok("Config file", fmt.Sprintf("loaded format %s", cfg.ConfigFormatVersion)))
	}

	if s.Scanner != nil {
		checks = append(checks, ok("Signature rules", fmt.Sprintf("version %s, %d rules compiled", s.Scanner.Version(), len(s.Scanner.Rules()))))
	} else {
		checks = append(checks, fail("Signature rules", "scanner not initialized"))
	}

	checks = append(checks, s.historyCheck(cfg.History))
	checks = append(checks, s.monitorCheck())
	checks = append(checks, s.advisorCheck(cfg.Advisor))

	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) historyCheck(settings domain.HistorySettings) domain.HealthCheck {
	if !settings.Enabled {
		return warn("History store", "disabled in config")
	}
	if s.History == nil {
		return warn("History store", "not initialized")
	}
	if _, err := s.History.Records(1, ""); err != nil {
		return fail("History store", err.Error())
	}
	if d, isDegradable := s.History.(degradable); isDegradable && d.Degraded() {
		return warn("History store", fmt.Sprintf("sqlite unavailable, using %s", s.History.Path()))
	}
	return ok("History store", s.History.Path())
}

func (s *Service) monitorCheck() domain.HealthCheck {
	if s.Monitor == nil {
		return warn("Runtime monitor", "not initialized")
	}
	if !s.Monitor.IsRuntimeMonitoringAvailable() {
		return warn("Runtime monitor", "no host environment attached; behavioral scores will be 0")
	}
	return ok("Runtime monitor", "host environment attached")
}

func (s *Service) advisorCheck(settings domain.AdvisorSettings) domain.HealthCheck {
	if !settings.Enabled {
		return ok("Advisor", "disabled")
	}
	if s.envMissing(settings.AuthEnvVar) {
		return warn("Advisor", fmt.Sprintf("%s missing; heuristic fallback in use", settings.AuthEnvVar))
	}
	return ok("Advisor", fmt.Sprintf("%s via %s", settings.Model, settings.AuthEnvVar))
}

func (s *Service) envMissing(name string) bool {
	lookup := s.LookupEnv
	if lookup == nil {
		lookup = os.Getenv
	}
	return name == "" || lookup(name) == ""
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
