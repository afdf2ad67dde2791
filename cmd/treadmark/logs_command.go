package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"treadmark/internal/api"
	"treadmark/internal/logs"
	"treadmark/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var itemID int64
	var component string
	var level string
	var search string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			apiClient, err := logs.NewStreamClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
			if err != nil {
				return err
			}

			var legacy logstream.TailClient
			if client, dialErr := ctx.dialClient(); dialErr == nil {
				defer client.Close()
				legacy = client
			}

			out := cmd.OutOrStdout()
			printed, err := logstream.Stream(cmd.Context(), apiClient, legacy, logstream.Options{
				Lines:  lines,
				Follow: follow,
				Filters: logstream.Filters{
					Component: component,
					ItemID:    itemID,
					Level:     level,
					Search:    search,
				},
			}, func(evt api.LogEvent) {
				fmt.Fprintln(out, formatLogEvent(evt))
			}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			if !printed && !follow {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().Int64Var(&itemID, "item", 0, "Filter events by queue item id")
	cmd.Flags().StringVar(&component, "component", "", "Filter events by component")
	cmd.Flags().StringVar(&level, "level", "", "Minimum log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&search, "search", "", "Filter events by message substring")
	return cmd
}

func formatLogEvent(evt api.LogEvent) string {
	ts := evt.Timestamp.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	subject := composeSubject(evt.ItemID, evt.Stage)
	line := strings.Join(parts, " ")
	if subject != "" {
		line += " " + subject
	}
	message := strings.TrimSpace(evt.Message)
	if message != "" {
		line += " " + message
	}
	if len(evt.Details) == 0 {
		return line
	}
	builder := strings.Builder{}
	builder.WriteString(line)
	for _, detail := range evt.Details {
		if strings.TrimSpace(detail.Label) == "" || strings.TrimSpace(detail.Value) == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(detail.Label)
		builder.WriteString(": ")
		builder.WriteString(detail.Value)
	}
	return builder.String()
}

func composeSubject(itemID int64, stage string) string {
	stage = strings.TrimSpace(stage)
	switch {
	case itemID > 0 && stage != "":
		return fmt.Sprintf("Item #%d (%s)", itemID, stage)
	case itemID > 0:
		return fmt.Sprintf("Item #%d", itemID)
	default:
		return stage
	}
}
