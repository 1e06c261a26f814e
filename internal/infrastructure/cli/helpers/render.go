package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/doeshing/extscan-go/internal/domain"
)

// Renderer prints results as plain text, colored when writing to a terminal.
type Renderer struct {
	color bool
}

// NewRenderer enables color only when out is a terminal and NO_COLOR is unset.
func NewRenderer(out io.Writer) Renderer {
	f, ok := out.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return Renderer{}
	}
	return Renderer{color: term.IsTerminal(int(f.Fd()))}
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	levelColors  = map[domain.ThreatLevel]lipgloss.Color{
		domain.ThreatSafe:       lipgloss.Color("2"),
		domain.ThreatLow:        lipgloss.Color("6"),
		domain.ThreatMedium:     lipgloss.Color("3"),
		domain.ThreatMediumHigh: lipgloss.Color("208"),
		domain.ThreatHigh:       lipgloss.Color("1"),
		domain.ThreatCritical:   lipgloss.Color("9"),
	}
	statusColors = map[domain.HealthStatus]lipgloss.Color{
		domain.HealthOK:    lipgloss.Color("2"),
		domain.HealthWarn:  lipgloss.Color("3"),
		domain.HealthError: lipgloss.Color("1"),
	}
)

func (r Renderer) paint(style lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return style.Render(s)
}

// Level renders a threat level.
func (r Renderer) Level(level domain.ThreatLevel) string {
	return r.paint(lipgloss.NewStyle().Bold(true).Foreground(levelColors[level]), string(level))
}

// Report prints an analysis summary.
func (r Renderer) Report(out io.Writer, result domain.AnalysisResult, verbose bool) {
	report := result.Report
	fmt.Fprintf(out, "%s %s\n", r.paint(headingStyle, "Extension:"), report.ExtensionID)
	fmt.Fprintf(out, "Threat level: %s (score %d/100)", r.Level(report.ThreatLevel), report.AggregateScore)
	if report.Escalated {
		fmt.Fprint(out, " [escalated]")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s\n", r.paint(dimStyle, fmt.Sprintf("rules %s, %d files scanned, cache hit: %t",
		result.Scan.RulesVersion, result.Scan.FilesScanned, result.CacheHit)))

	matched := report.MatchedCategories()
	if len(matched) == 0 {
		fmt.Fprintln(out, "\nNo risk categories matched.")
	} else {
		fmt.Fprintln(out)
		fmt.Fprintln(out, r.paint(headingStyle, "Matched categories:"))
		for _, name := range matched {
			cat := report.Categories[name]
			fmt.Fprintf(out, "  %-24s %3d\n", name, cat.Score)
			if verbose {
				for _, ev := range cat.Evidence {
					fmt.Fprintf(out, "      %s\n", r.paint(dimStyle, ev))
				}
			}
		}
	}

	if perms := result.Permissions; len(perms.Dangerous) > 0 || perms.Elevated {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Dangerous permissions (%d): %s\n", perms.DangerousCount, strings.Join(perms.Dangerous, ", "))
		if perms.Elevated {
			fmt.Fprintf(out, "Broad host access: %s\n", strings.Join(perms.BroadHosts, ", "))
		}
	}

	if len(result.Scan.Warnings) > 0 {
		fmt.Fprintln(out)
		for _, w := range result.Scan.Warnings {
			fmt.Fprintf(out, "warning: %s: %s\n", w.File, w.Reason)
		}
	}

	if result.Opinion != nil {
		verdict := "not malicious"
		if result.Opinion.IsMalicious {
			verdict = "malicious"
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Advisor: %s (confidence %.2f)\n", verdict, result.Opinion.Confidence)
		fmt.Fprintf(out, "  %s\n", result.Opinion.Justification)
	} else if result.AdvisorError != "" {
		fmt.Fprintf(out, "\nAdvisor unavailable: %s\n", result.AdvisorError)
	}
}

// Diagnostic prints a verification outcome.
func (r Renderer) Diagnostic(out io.Writer, diag domain.Diagnostic) {
	status := r.paint(lipgloss.NewStyle().Foreground(statusColors[domain.HealthOK]), "PASS")
	if !diag.Passed {
		status = r.paint(lipgloss.NewStyle().Foreground(statusColors[domain.HealthError]), "FAIL")
	}
	fmt.Fprintf(out, "Verification: %s\n", status)
	if diag.WantLevel != "" {
		fmt.Fprintf(out, "  level: want %s, got %s\n", diag.WantLevel, diag.GotLevel)
	} else {
		fmt.Fprintf(out, "  level: %s\n", diag.GotLevel)
	}
	for _, id := range diag.MissingRules {
		fmt.Fprintf(out, "  missing rule: %s\n", id)
	}
	for _, id := range diag.UnexpectedRules {
		fmt.Fprintf(out, "  unexpected rule: %s\n", id)
	}
}

// Health prints doctor checks.
func (r Renderer) Health(out io.Writer, report domain.HealthReport) {
	for _, check := range report.Checks {
		tag := fmt.Sprintf("[%s]", strings.ToUpper(string(check.Status)))
		fmt.Fprintf(out, "%s %s - %s\n",
			r.paint(lipgloss.NewStyle().Foreground(statusColors[check.Status]), tag),
			check.Name,
			check.Details)
	}
}

// JSON writes v indented.
func JSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
