package ai

import (
	"context"
	"os"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// Factory builds report advisors from settings.
type Factory struct {
	lookupEnv func(string) string
}

// NewFactory reads credentials from the process environment.
func NewFactory() *Factory {
	return &Factory{lookupEnv: os.Getenv}
}

// ForSettings returns nil when the advisor is disabled, the heuristic advisor when the
// credential variable is unset, and a model-backed advisor otherwise.
func (f *Factory) ForSettings(ctx context.Context, settings domain.AdvisorSettings) (ports.ReportAdvisor, error) {
	if !settings.Enabled {
		return nil, nil
	}
	apiKey := ""
	if settings.AuthEnvVar != "" {
		apiKey = f.lookupEnv(settings.AuthEnvVar)
	}
	if apiKey == "" {
		return newHeuristicAdvisor(), nil
	}
	advisor, err := NewAdvisor(ctx, settings, apiKey)
	if err != nil {
		return nil, err
	}
	return advisor, nil
}

// IsHeuristic reports whether advisor is the offline fallback.
func IsHeuristic(advisor ports.ReportAdvisor) bool {
	_, ok := advisor.(heuristicAdvisor)
	return ok
}
