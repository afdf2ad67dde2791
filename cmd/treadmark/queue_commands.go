package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"treadmark/internal/api"
	"treadmark/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the annotation queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueClearFailedCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueStopCommand(ctx))
	queueCmd.AddCommand(newQueueHealthSubcommand(ctx))

	return queueCmd
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				stats, err := qa.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: stats})
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				items, err := qa.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if items == nil {
						items = []api.QueueItem{}
					}
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Stage", "Created", "SHA-256"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show queue item detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				item, err := qa.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("queue item %d not found", id)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueItemResponse{Item: *item})
				}
				printQueueItemDetail(cmd, item)
				return nil
			})
		},
	}
}

func printQueueItemDetail(cmd *cobra.Command, item *api.QueueItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Item #%d\n", item.ID)
	fmt.Fprintf(out, "  Title:        %s\n", item.ImageTitle)
	if item.Label != "" {
		fmt.Fprintf(out, "  Label:        %s\n", item.Label)
	}
	fmt.Fprintf(out, "  Status:       %s\n", formatStatusLabel(item.Status))
	if item.Stage != "" {
		fmt.Fprintf(out, "  Stage:        %s\n", formatStatusLabel(item.Stage))
	}
	fmt.Fprintf(out, "  Source:       %s\n", item.SourcePath)
	if item.Width > 0 && item.Height > 0 {
		fmt.Fprintf(out, "  Dimensions:   %dx%d\n", item.Width, item.Height)
	}
	if item.MimeType != "" {
		fmt.Fprintf(out, "  MIME type:    %s\n", item.MimeType)
	}
	if item.ImageSHA256 != "" {
		fmt.Fprintf(out, "  SHA-256:      %s\n", item.ImageSHA256)
	}
	if stage := strings.TrimSpace(item.Progress.Stage); stage != "" {
		fmt.Fprintf(out, "  Progress:     %s (%.0f%%)\n", stage, item.Progress.Percent)
	}
	if msg := strings.TrimSpace(item.Progress.Message); msg != "" {
		fmt.Fprintf(out, "  Message:      %s\n", msg)
	}
	for _, file := range []struct {
		label string
		value string
	}{
		{"Original", item.OriginalFile},
		{"Working", item.WorkingFile},
		{"Mask", item.MaskFile},
		{"Grayscale", item.GrayscaleFile},
		{"Exported", item.ExportedFile},
	} {
		if strings.TrimSpace(file.value) != "" {
			fmt.Fprintf(out, "  %-13s %s\n", file.label+":", file.value)
		}
	}
	if item.NeedsReview {
		fmt.Fprintf(out, "  Needs review: yes (%s)\n", item.ReviewReason)
	}
	if item.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:        %s\n", item.ErrorMessage)
	}
	if created := formatDisplayTime(item.CreatedAt); created != "" {
		fmt.Fprintf(out, "  Created:      %s\n", created)
	}
	if updated := formatDisplayTime(item.UpdatedAt); updated != "" {
		fmt.Fprintf(out, "  Updated:      %s\n", updated)
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				var label string
				switch {
				case clearCompleted:
					removed, err = qa.ClearCompleted(cmd.Context())
					label = "completed items"
				case clearFailed:
					removed, err = qa.ClearFailed(cmd.Context())
					label = "failed items"
				default:
					removed, err = qa.ClearAll(cmd.Context())
					label = "queue items"
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"removed": removed})
				}
				fmt.Fprintf(out, "Cleared %d %s\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func newQueueClearFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Remove failed queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				removed, err := qa.ClearFailed(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failed items\n", removed)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <itemID>...",
		Short: "Remove specific queue items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				removed, err := qa.Remove(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queue items\n", removed)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return in-flight items to their resumable state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				updated, err := qa.ResetStuck(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"updated": updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items\n", updated)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Retry failed queue items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := qa.RetryAll(cmd.Context())
					if err != nil {
						return err
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]int64{"updated": updated})
					}
					fmt.Fprintf(out, "Retried %d failed items\n", updated)
					return nil
				}

				var total int64
				for _, id := range ids {
					updated, err := qa.Retry(cmd.Context(), []int64{id})
					if err != nil {
						return err
					}
					total += updated
					if ctx.JSONMode() {
						continue
					}
					if updated > 0 {
						fmt.Fprintf(out, "Item %d reset for retry\n", id)
					} else {
						fmt.Fprintf(out, "Item %d is not in failed state\n", id)
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"updated": total})
				}
				return nil
			})
		},
	}
}

func newQueueStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <itemID>...",
		Short: "Stop queue items and park them for review",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				updated, err := qa.Stop(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int64{"updated": updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d queue items\n", updated)
				return nil
			})
		},
	}
}

func newQueueHealthSubcommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueAccess(func(qa queueaccess.Access) error {
				health, err := qa.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, health)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\nPending: %d\nProcessing: %d\nEditing: %d\nReview: %d\nFailed: %d\nCompleted: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Editing,
					health.Review,
					health.Failed,
					health.Completed,
				)
				return nil
			})
		},
	}
}
