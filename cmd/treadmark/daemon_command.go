package main

import (
	"github.com/spf13/cobra"

	"treadmark/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the treadmark daemon (internal)",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if diagnostic {
				level = "debug"
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   level,
				Diagnostic: diagnostic,
			})
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")
	return cmd
}
