package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
)

// ErrThreatThreshold is returned when --fail-on is met, so scripts get a non-zero exit.
var ErrThreatThreshold = errors.New("threat level threshold reached")

type scanFlags struct {
	extensionID string
	asJSON      bool
	noCache     bool
	noHistory   bool
	aiReview    bool
	evidence    bool
	failOn      string
}

// NewScanCommand creates the scan command
func NewScanCommand(rt *helpers.Runtime) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan <extension-dir|package.zip>",
		Short: "Analyze an extension and print its risk report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failOn domain.ThreatLevel
			if flags.failOn != "" {
				level, ok := domain.ParseThreatLevel(flags.failOn)
				if !ok {
					return fmt.Errorf("unknown threat level %q", flags.failOn)
				}
				failOn = level
			}

			result, err := runAnalysis(cmd, rt, args[0], flags, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				if err := helpers.JSON(out, result); err != nil {
					return err
				}
			} else {
				helpers.NewRenderer(out).Report(out, result, flags.evidence)
			}

			if failOn != "" && result.Report.ThreatLevel.AtLeast(failOn) {
				return fmt.Errorf("%w: %s >= %s", ErrThreatThreshold, result.Report.ThreatLevel, failOn)
			}
			return nil
		},
	}

	addAnalysisFlags(cmd, &flags)
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "Do not record this analysis")
	cmd.Flags().BoolVar(&flags.aiReview, "ai-review", false, "Ask the configured advisor for a second opinion")
	cmd.Flags().BoolVar(&flags.evidence, "evidence", false, "Print evidence lines for matched categories")
	cmd.Flags().StringVar(&flags.failOn, "fail-on", "", "Exit non-zero when the threat level is at least LEVEL")
	return cmd
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand(rt *helpers.Runtime) *cobra.Command {
	var (
		flags    scanFlags
		expected []string
		banned   []string
		level    string
	)

	cmd := &cobra.Command{
		Use:   "verify <extension-dir|package.zip>",
		Short: "Check an analysis against expected rules and threat level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expect := domain.Expectation{ExpectedRules: expected, ProhibitedRules: banned}
			if level != "" {
				parsed, ok := domain.ParseThreatLevel(level)
				if !ok {
					return fmt.Errorf("unknown threat level %q", level)
				}
				expect.ThreatLevel = parsed
			}

			flags.noHistory = true
			result, err := runAnalysis(cmd, rt, args[0], flags, &expect)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				if err := helpers.JSON(out, result.Diagnostic); err != nil {
					return err
				}
			} else {
				helpers.NewRenderer(out).Diagnostic(out, *result.Diagnostic)
			}
			if !result.Diagnostic.Passed {
				return errors.New("verification failed")
			}
			return nil
		},
	}

	addAnalysisFlags(cmd, &flags)
	cmd.Flags().StringSliceVar(&expected, "expect", nil, "Rule ids that must match")
	cmd.Flags().StringSliceVar(&banned, "prohibit", nil, "Rule ids that must not match")
	cmd.Flags().StringVar(&level, "level", "", "Exact threat level expected")
	return cmd
}

func addAnalysisFlags(cmd *cobra.Command, flags *scanFlags) {
	cmd.Flags().StringVar(&flags.extensionID, "id", "", "Extension id to report (default: manifest name)")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print JSON instead of a summary")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Ignore cached scan results")
}

func runAnalysis(cmd *cobra.Command, rt *helpers.Runtime, path string, flags scanFlags, expect *domain.Expectation) (domain.AnalysisResult, error) {
	container, err := rt.Container(cmd.Context(), false)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return container.AnalysisService.Analyze(cmd.Context(), domain.AnalysisRequest{
		Path:        path,
		ExtensionID: flags.extensionID,
		Expect:      expect,
		NoCache:     flags.noCache,
		Advise:      flags.aiReview,
		SaveHistory: !flags.noHistory && container.HistoryStore != nil,
	})
}
