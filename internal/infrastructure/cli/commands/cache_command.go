package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/doeshing/extscan-go/internal/infrastructure/cache"
	"github.com/doeshing/extscan-go/internal/infrastructure/cli/helpers"
)

// NewCacheCommand creates the cache command with all subcommands
func NewCacheCommand(rt *helpers.Runtime) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the scan-result cache",
	}

	cacheCmd.AddCommand(
		newCacheClearCommand(rt),
		newCacheStatsCommand(rt),
	)

	return cacheCmd
}

// newCacheClearCommand creates the 'cache clear' subcommand
func newCacheClearCommand(rt *helpers.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached scan results",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cacheStore(cmd, rt)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgCacheCleared)
			return nil
		},
	}
}

// newCacheStatsCommand creates the 'cache stats' subcommand
func newCacheStatsCommand(rt *helpers.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache settings, entry count and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cacheStore(cmd, rt)
			if err != nil {
				return err
			}
			return showCacheStats(cmd.OutOrStdout(), store)
		},
	}
}

func cacheStore(cmd *cobra.Command, rt *helpers.Runtime) (*cache.FileCache, error) {
	container, err := rt.Container(cmd.Context(), false)
	if err != nil {
		return nil, err
	}
	if container.CacheStore == nil {
		return nil, errors.New(ErrCacheStoreUnavailable)
	}
	return container.CacheStore, nil
}

// showCacheStats displays cache settings and usage
func showCacheStats(out io.Writer, store *cache.FileCache) error {
	size, err := calculateDirectorySize(store.Dir())
	if err != nil {
		return fmt.Errorf("failed to calculate cache size: %w", err)
	}
	fmt.Fprintf(out, "Cache directory: %s\nTTL: %s\nEntries: %d\nSize: %d bytes\n",
		store.Dir(), store.TTL(), store.Len(), size)
	return nil
}

// calculateDirectorySize calculates the total size of a directory
func calculateDirectorySize(dirPath string) (int64, error) {
	var totalSize int64

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files that can't be accessed
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return totalSize, nil
}
