package ai

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/doeshing/extscan-go/internal/domain"
)

const systemPrompt = `You are a security analyst specializing in browser extension review. You receive the
output of a static signature scan, a manifest permission evaluation and runtime behavior counts for a
single extension, already aggregated into a risk report.

WHAT TO LOOK FOR:
1. Data exfiltration to webhooks, paste sites or tunnels
2. Credential, cookie or history harvesting combined with network access
3. Keystroke capture and form hijacking
4. Dynamic code execution and obfuscation
5. Permission requests out of proportion to the stated purpose

False positives are common for analytics and developer tooling. Multiple independent indicators
increase confidence. Provide a short justification and list the indicators you relied on.`

const reportTemplate = `Review browser extension: {{.ExtensionID}}
Threat level: {{.ThreatLevel}} (score {{.Score}}/100){{if .Escalated}}, escalated{{end}}
Rules version: {{.RulesVersion}}, files scanned: {{.FilesScanned}}

MATCHED CATEGORIES:
{{range .Categories}}- {{.Name}}: score {{.Score}}
{{range .Evidence}}    * {{.}}
{{end}}{{else}}(none)
{{end}}
Use the submit_assessment tool to provide your assessment.`

type categoryView struct {
	Name     string
	Score    int
	Evidence []string
}

type templateData struct {
	ExtensionID  string
	ThreatLevel  domain.ThreatLevel
	Score        int
	Escalated    bool
	RulesVersion string
	FilesScanned int
	Categories   []categoryView
}

// maxPromptEvidence limits evidence lines per category so the prompt stays small.
const maxPromptEvidence = 5

func buildTemplateData(report domain.RiskReport, scan domain.ScanResult) templateData {
	data := templateData{
		ExtensionID:  report.ExtensionID,
		ThreatLevel:  report.ThreatLevel,
		Score:        report.AggregateScore,
		Escalated:    report.Escalated,
		RulesVersion: scan.RulesVersion,
		FilesScanned: scan.FilesScanned,
	}
	for _, name := range report.MatchedCategories() {
		result := report.Categories[name]
		evidence := result.Evidence
		if len(evidence) > maxPromptEvidence {
			evidence = evidence[:maxPromptEvidence]
		}
		data.Categories = append(data.Categories, categoryView{Name: name, Score: result.Score, Evidence: evidence})
	}
	return data
}

func renderReportPrompt(report domain.RiskReport, scan domain.ScanResult) (string, error) {
	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildTemplateData(report, scan)); err != nil {
		return "", fmt.Errorf("render report prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
