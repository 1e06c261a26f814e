package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
	"github.com/doeshing/extscan-go/internal/infrastructure/transport"
)

// NewMonitorCommand creates the monitor command with its subcommands
func NewMonitorCommand(rt *helpers.Runtime) *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Runtime behavior monitoring",
	}
	monitorCmd.AddCommand(newMonitorServeCommand(rt), newMonitorEventsCommand(rt))
	return monitorCmd
}

func newMonitorServeCommand(rt *helpers.Runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept live events from a browser host over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := rt.Container(cmd.Context(), true)
			if err != nil {
				return err
			}
			if container.Hub == nil {
				return errors.New("monitor host unavailable")
			}
			if addr == "" {
				addr = container.Config.Monitor.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				container.Monitor.Run(ctx)
			}()

			server := transport.NewServer(container.Monitor, container.Hub, func() interface{} {
				return container.Monitor.Stats()
			}, container.Logger)

			fmt.Fprintf(cmd.OutOrStdout(), "Monitoring on http://%s (websocket /ws)\n", addr)
			err = server.ListenAndServe(ctx, addr)
			stop()
			wg.Wait()

			stats := container.Monitor.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped: %d events classified, %d failures, %d dropped\n",
				stats.Classified, stats.ClassificationFailures, stats.Dropped)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from monitor.listen_addr)")
	return cmd
}

func newMonitorEventsCommand(rt *helpers.Runtime) *cobra.Command {
	var extensionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show persisted behavior-event counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := rt.Container(cmd.Context(), false)
			if err != nil {
				return err
			}
			if container.HistoryStore == nil {
				return errors.New(ErrHistoryStoreUnavailable)
			}
			counts, err := container.HistoryStore.EventCounts(extensionID)
			if err != nil {
				return fmt.Errorf("failed to read exported events: %w", err)
			}
			if asJSON {
				return helpers.JSON(cmd.OutOrStdout(), counts)
			}
			out := cmd.OutOrStdout()
			for _, category := range domain.BehaviorCategories {
				fmt.Fprintf(out, "%-20s %d\n", category, counts[category])
			}
			fmt.Fprintf(out, "%-20s %d\n", "total", counts.Total())
			return nil
		},
	}

	cmd.Flags().StringVar(&extensionID, "id", "", "Only count events of this extension")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
