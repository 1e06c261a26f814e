package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/doeshing/extscan-go/internal/infrastructure/cli/commands"
	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command. The returned runtime must be closed after Execute.
func NewRootCmd(_ context.Context, opts Options) (*cobra.Command, *helpers.Runtime) {
	rt := &helpers.Runtime{Verbose: opts.Verbose}

	root := &cobra.Command{
		Use:           "extscan",
		Short:         "extscan - browser extension risk analysis",
		Long:          "extscan scans extension source for risky signatures, evaluates manifest permissions,\nfolds in runtime behavior and reports a threat level.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rt.ConfigPath, "config", "", "Config file (default ~/.extscan/config.yaml or $EXTSCAN_CONFIG)")
	root.PersistentFlags().BoolVarP(&rt.Verbose, "verbose", "v", opts.Verbose, "Enable debug logging")

	root.AddCommand(
		commands.NewScanCommand(rt),
		commands.NewVerifyCommand(rt),
		commands.NewRulesCommand(rt),
		commands.NewMonitorCommand(rt),
		commands.NewHistoryCommand(rt),
		commands.NewCacheCommand(rt),
		commands.NewConfigCommand(rt),
		commands.NewDoctorCommand(rt),
		commands.NewVersionCommand(),
	)
	return root, rt
}
