package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"treadmark/internal/logging"
	"treadmark/internal/queue"
	"treadmark/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage staged item and scratch directories",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staged item directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			dirs, err := staging.ListDirectories(cfg.ItemsDir())
			if err != nil {
				return fmt.Errorf("list item directories: %w", err)
			}
			scratch, err := staging.ListDirectories(cfg.Paths.ScratchDir)
			if err != nil {
				return fmt.Errorf("list scratch directories: %w", err)
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				if scratch == nil {
					scratch = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"items_dir":   cfg.ItemsDir(),
					"scratch_dir": cfg.Paths.ScratchDir,
					"items":       dirs,
					"scratch":     scratch,
				})
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 && len(scratch) == 0 {
				fmt.Fprintln(out, "No staged directories found")
				return nil
			}

			var totalSize int64
			rows := make([][]string, 0, len(dirs)+len(scratch))
			for _, dir := range dirs {
				rows = append(rows, stagingRow("item", dir))
				totalSize += dir.Size
			}
			for _, dir := range scratch {
				rows = append(rows, stagingRow("scratch", dir))
				totalSize += dir.Size
			}

			table := renderTable(
				[]string{"Kind", "Name", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			)
			fmt.Fprintln(out, table)
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(rows), humanize.Bytes(uint64(totalSize)))
			return nil
		},
	}
}

func stagingRow(kind string, dir staging.DirInfo) []string {
	age := time.Since(dir.ModTime).Truncate(time.Minute)
	return []string{kind, dir.Name, formatDuration(age), humanize.Bytes(uint64(dir.Size))}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var scratchAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove orphaned item directories and stale scratch directories",
		Long: `Remove staged directories that no longer serve any queue item.

Item directories whose queue entry has been removed are deleted. Scratch
directories older than --scratch-age are deleted regardless of origin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			active, err := store.ActiveItemIDs(cmd.Context())
			if err != nil {
				return fmt.Errorf("load active item ids: %w", err)
			}

			logger := logging.NewNop()
			orphaned := staging.CleanOrphaned(cmd.Context(), cfg.ItemsDir(), active, logger)
			stale := staging.CleanStale(cmd.Context(), cfg.Paths.ScratchDir, scratchAge, logger)

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"orphaned_removed": len(orphaned.Removed),
					"scratch_removed":  len(stale.Removed),
					"errors":           cleanupErrorStrings(orphaned, stale),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d orphaned item directories\n", len(orphaned.Removed))
			fmt.Fprintf(out, "Removed %d stale scratch directories\n", len(stale.Removed))
			for _, msg := range cleanupErrorStrings(orphaned, stale) {
				fmt.Fprintf(out, "  Error: %s\n", msg)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&scratchAge, "scratch-age", 24*time.Hour, "Remove scratch directories older than this")
	return cmd
}

func cleanupErrorStrings(results ...staging.CleanStaleResult) []string {
	msgs := make([]string, 0)
	for _, result := range results {
		for _, e := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %v", e.Path, e.Error))
		}
	}
	return msgs
}

func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
