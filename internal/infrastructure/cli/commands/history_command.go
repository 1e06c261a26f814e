package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
	"github.com/doeshing/extscan-go/internal/ports"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(rt *helpers.Runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded analyses",
	}

	historyCmd.AddCommand(
		newHistoryListCommand(rt),
		newHistoryShowCommand(rt),
		newHistoryClearCommand(rt),
		newHistoryExportCommand(rt),
		newHistoryStatsCommand(rt),
		newHistoryPruneCommand(rt),
	)

	return historyCmd
}

// newHistoryListCommand creates the 'history list' subcommand
func newHistoryListCommand(rt *helpers.Runtime) *cobra.Command {
	var limit int
	var extensionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(cmd, rt)
			if err != nil {
				return err
			}
			return listHistoryEntries(cmd.OutOrStdout(), store, limit, extensionID)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Max entries to show")
	cmd.Flags().StringVar(&extensionID, "id", "", "Only show analyses of this extension")
	return cmd
}

// newHistoryShowCommand creates the 'history show' subcommand
func newHistoryShowCommand(rt *helpers.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Print a recorded report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			store, err := historyStore(cmd, rt)
			if err != nil {
				return err
			}
			record, ok, err := store.Get(id)
			if err != nil {
				return fmt.Errorf("failed to read record %d: %w", id, err)
			}
			if !ok {
				return fmt.Errorf("record %d not found", id)
			}
			return helpers.JSON(cmd.OutOrStdout(), record)
		},
	}
}

// newHistoryClearCommand creates the 'history clear' subcommand
func newHistoryClearCommand(rt *helpers.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded analyses and exported events",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(cmd, rt)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgHistoryCleared)
			return nil
		},
	}
}

// newHistoryExportCommand creates the 'history export' subcommand
func newHistoryExportCommand(rt *helpers.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export history to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(cmd, rt)
			if err != nil {
				return err
			}
			if err := store.ExportJSON(args[0]); err != nil {
				return fmt.Errorf("failed to export history to %s: %w", args[0], err)
			}
			return nil
		},
	}
}

// newHistoryStatsCommand creates the 'history stats' subcommand
func newHistoryStatsCommand(rt *helpers.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show threat-level distribution and most analyzed extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(cmd, rt)
			if err != nil {
				return err
			}
			return showHistoryStats(cmd.OutOrStdout(), store)
		},
	}
}

// newHistoryPruneCommand creates the 'history prune' subcommand
func newHistoryPruneCommand(rt *helpers.Runtime) *cobra.Command {
	var retainDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete analyses older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retainDays <= 0 {
				return errors.New(ErrInvalidRetainDays)
			}
			store, err := historyStore(cmd, rt)
			if err != nil {
				return err
			}
			if err := store.PruneOlderThan(retainDays); err != nil {
				return fmt.Errorf("failed to prune old history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retained last %d days of history.\n", retainDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&retainDays, "days", DefaultHistoryRetainDays, "Days to retain history")
	return cmd
}

func historyStore(cmd *cobra.Command, rt *helpers.Runtime) (ports.ReportRepository, error) {
	container, err := rt.Container(cmd.Context(), false)
	if err != nil {
		return nil, err
	}
	if container.HistoryStore == nil {
		return nil, errors.New(ErrHistoryStoreUnavailable)
	}
	return container.HistoryStore, nil
}

// listHistoryEntries lists recent history entries
func listHistoryEntries(out io.Writer, store ports.ReportRepository, limit int, extensionID string) error {
	records, err := store.Records(limit, extensionID)
	if err != nil {
		return fmt.Errorf("failed to retrieve history records: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}

	for _, rec := range records {
		fmt.Fprintf(out, "%d | %s | %s | %s | %d | %s\n",
			rec.ID,
			rec.Timestamp.Local().Format(TimestampFormat),
			rec.ExtensionID,
			rec.ThreatLevel,
			rec.Score,
			rec.Source)
	}

	return nil
}

// showHistoryStats displays the level distribution and most analyzed extensions
func showHistoryStats(out io.Writer, store ports.ReportRepository) error {
	records, err := store.Records(MaxHistoryAnalysisRecords, "")
	if err != nil {
		return fmt.Errorf("failed to retrieve history for analysis: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}

	fmt.Fprintf(out, "Analyses: %d\nAverage score: %.1f\n", len(records), helpers.AverageScore(records))

	fmt.Fprintln(out, "Threat levels:")
	for _, row := range helpers.LevelDistribution(records) {
		fmt.Fprintf(out, "  %s: %d\n", row.Level, row.Count)
	}

	fmt.Fprintln(out, "Most analyzed:")
	for _, stat := range helpers.CalculateTopExtensions(records, 5) {
		fmt.Fprintf(out, "  %s (%d, worst %s)\n", stat.ExtensionID, stat.Count, stat.WorstLevel)
	}

	return nil
}
