package doctor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/infrastructure/config"
	"github.com/doeshing/extscan-go/internal/infrastructure/history"
	"github.com/doeshing/extscan-go/internal/infrastructure/monitor"
	"github.com/doeshing/extscan-go/internal/infrastructure/signatures"
	"github.com/doeshing/extscan-go/internal/infrastructure/transport"
	"github.com/doeshing/extscan-go/internal/pkg/logger"
)

type staticConfig struct {
	cfg domain.Config
	err error
}

func (s staticConfig) Load(context.Context) (domain.Config, error) { return s.cfg, s.err }

func statusOf(report domain.HealthReport, name string) domain.HealthStatus {
	for _, check := range report.Checks {
		if check.Name == name {
			return check.Status
		}
	}
	return ""
}

func newDoctor(t *testing.T, cfg domain.Config) *Service {
	t.Helper()
	scanner, err := signatures.NewScannerFromFile("", signatures.Options{})
	require.NoError(t, err)
	mon, err := monitor.New(monitor.Options{Host: transport.Detached{}, Logger: logger.Nop{}})
	require.NoError(t, err)
	return &Service{
		ConfigProvider: staticConfig{cfg: cfg},
		Scanner:        scanner,
		History:        history.NewFileStore(filepath.Join(t.TempDir(), "history.jsonl")),
		Monitor:        mon,
		LookupEnv:      func(string) string { return "" },
	}
}

func TestDoctorHealthyDefaults(t *testing.T) {
	report, err := newDoctor(t, config.DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Failed())
	assert.Equal(t, domain.HealthOK, statusOf(report, "Config file"))
	assert.Equal(t, domain.HealthOK, statusOf(report, "Signature rules"))
	assert.Equal(t, domain.HealthOK, statusOf(report, "History store"))
	assert.Equal(t, domain.HealthWarn, statusOf(report, "Runtime monitor"))
	assert.Equal(t, domain.HealthOK, statusOf(report, "Advisor"))
}

func TestDoctorFlagsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scan.Workers = 0
	report, err := newDoctor(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.Equal(t, domain.HealthError, statusOf(report, "Config file"))
}

func TestDoctorAdvisorKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Advisor.Enabled = true

	svc := newDoctor(t, cfg)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthWarn, statusOf(report, "Advisor"))

	svc.LookupEnv = func(name string) string { return "sk-test" }
	report, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthOK, statusOf(report, "Advisor"))
}

func TestDoctorConfigLoadFailure(t *testing.T) {
	svc := &Service{ConfigProvider: staticConfig{err: errors.New("boom")}}
	report, err := svc.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, domain.HealthError, statusOf(report, "Config file"))
}
