package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	appconfig "github.com/doeshing/extscan-go/internal/application/config"
	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
	configinfra "github.com/doeshing/extscan-go/internal/infrastructure/config"
)

// NewConfigCommand creates the config command with all subcommands. It reads the file
// directly so an invalid configuration can still be inspected and repaired.
func NewConfigCommand(rt *helpers.Runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect extscan configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd.Context(), cmd.OutOrStdout(), loaderFor(rt))
		},
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show full configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return showConfiguration(cmd.Context(), cmd.OutOrStdout(), loaderFor(rt))
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file location",
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), loaderFor(rt).Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				return validateConfiguration(cmd.Context(), cmd.OutOrStdout(), loaderFor(rt))
			},
		},
		&cobra.Command{
			Use:   "diff",
			Short: "Show diff versus default configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return showConfigurationDiff(cmd.Context(), cmd.OutOrStdout(), loaderFor(rt))
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Reset configuration to defaults",
			RunE: func(cmd *cobra.Command, args []string) error {
				loader := loaderFor(rt)
				if err := loader.Save(configinfra.DefaultConfig()); err != nil {
					return fmt.Errorf("failed to reset configuration: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration reset at %s\n", loader.Path())
				return nil
			},
		},
	)

	return configCmd
}

func loaderFor(rt *helpers.Runtime) *configinfra.FileLoader {
	return configinfra.NewFileLoader(rt.ConfigPath)
}

// showConfiguration displays the full configuration in YAML format
func showConfiguration(ctx context.Context, out io.Writer, loader *configinfra.FileLoader) error {
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Fprint(out, string(data))
	return nil
}

func validateConfiguration(ctx context.Context, out io.Writer, loader *configinfra.FileLoader) error {
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := appconfig.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Fprintln(out, MsgConfigurationValid)
	return nil
}

// showConfigurationDiff shows the difference between current and default configuration
func showConfigurationDiff(ctx context.Context, out io.Writer, loader *configinfra.FileLoader) error {
	current, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current configuration: %w", err)
	}

	diff := cmp.Diff(configinfra.DefaultConfig(), current)
	if diff == "" {
		fmt.Fprintln(out, MsgNoDifferencesFromDefault)
		return nil
	}

	fmt.Fprintln(out, diff)
	return nil
}
