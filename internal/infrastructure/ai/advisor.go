// Package ai provides the optional second-opinion reviewer for risk reports.
//
// The reviewer sends a rendered report to an OpenAI-compatible endpoint through an agent
// with a single submit_assessment tool. When credentials are missing the factory returns a
// local heuristic reviewer instead, so callers never need to special-case offline use.
package ai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/openai"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// DefaultBaseURL is used when the settings leave base_url empty.
const DefaultBaseURL = "https://api.openai.com/v1"

// ErrNoAssessment is returned when the model finished without calling the submit tool.
var ErrNoAssessment = errors.New("advisor returned no assessment")

// Advisor reviews reports with a language model.
type Advisor struct {
	model fantasy.LanguageModel
	name  string
}

// NewAdvisor connects to the configured endpoint.
func NewAdvisor(ctx context.Context, settings domain.AdvisorSettings, apiKey string) (*Advisor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for the advisor")
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	provider, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithAPIKey(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, settings.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}

	return &Advisor{model: model, name: settings.Model}, nil
}

// Review implements ports.ReportAdvisor.
func (a *Advisor) Review(ctx context.Context, report domain.RiskReport, scan domain.ScanResult) (domain.AdvisoryOpinion, error) {
	prompt, err := renderReportPrompt(report, scan)
	if err != nil {
		return domain.AdvisoryOpinion{}, err
	}

	var (
		opinion   domain.AdvisoryOpinion
		submitted bool
	)
	submitTool := fantasy.NewAgentTool(
		"submit_assessment",
		"Submit your security assessment for this extension", func(
			_ context.Context,
			input domain.AdvisoryOpinion,
			_ fantasy.ToolCall,
		) (fantasy.ToolResponse, error) {
			opinion = input
			submitted = true
			return fantasy.ToolResponse{
				Content: "Assessment received",
			}, nil
		})

	ctx, cancel := context.WithTimeout(ctx, domain.DefaultAdvisorTimeout)
	defer cancel()

	agent := fantasy.NewAgent(a.model, fantasy.WithSystemPrompt(systemPrompt), fantasy.WithTools(submitTool))
	if _, err := agent.Generate(ctx, fantasy.AgentCall{Prompt: prompt}); err != nil {
		return domain.AdvisoryOpinion{}, fmt.Errorf("agent generation failed: %w", err)
	}
	if !submitted {
		return domain.AdvisoryOpinion{}, ErrNoAssessment
	}
	return normalizeOpinion(opinion), nil
}

// Name is the model the advisor talks to.
func (a *Advisor) Name() string {
	return a.name
}

func normalizeOpinion(opinion domain.AdvisoryOpinion) domain.AdvisoryOpinion {
	if math.IsNaN(opinion.Confidence) {
		opinion.Confidence = 0
	}
	opinion.Confidence = math.Max(0, math.Min(1, opinion.Confidence))
	return opinion
}

var _ ports.ReportAdvisor = (*Advisor)(nil)
