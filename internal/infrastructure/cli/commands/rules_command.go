package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
	"github.com/doeshing/extscan-go/internal/infrastructure/signatures"
)

// NewRulesCommand creates the rules command with its subcommands
func NewRulesCommand(rt *helpers.Runtime) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate signature rules",
	}
	rulesCmd.AddCommand(newRulesListCommand(rt), newRulesValidateCommand())
	return rulesCmd
}

func newRulesListCommand(rt *helpers.Runtime) *cobra.Command {
	var category string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the compiled rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := rt.Container(cmd.Context(), false)
			if err != nil {
				return err
			}
			rules := filterRules(container.Scanner.Rules(), domain.Category(category))
			if asJSON {
				return helpers.JSON(cmd.OutOrStdout(), rules)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rules version %s (acceptance threshold %.2f)\n",
				container.Scanner.Version(), container.Scanner.AcceptanceThreshold())
			return printRules(cmd.OutOrStdout(), rules)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list rules of this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRulesValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules.yaml>",
		Short: "Compile a rule file and report the first error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			set, err := signatures.ParseRuleSet(data)
			if err != nil {
				return err
			}
			scanner, err := signatures.NewScanner(set, signatures.Options{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s, %d rules\n", MsgRulesValid, scanner.Version(), len(scanner.Rules()))
			return nil
		},
	}
}

func filterRules(rules []domain.PatternRule, category domain.Category) []domain.PatternRule {
	if category == "" {
		return rules
	}
	out := []domain.PatternRule{}
	for _, rule := range rules {
		if rule.Category == category {
			out = append(out, rule)
		}
	}
	return out
}

func printRules(out io.Writer, rules []domain.PatternRule) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tWEIGHT\tDESCRIPTION")
	for _, rule := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", rule.ID, rule.Category, rule.Weight, rule.Description)
	}
	return tw.Flush()
}
