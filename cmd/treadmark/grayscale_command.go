package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"treadmark/internal/logging"
	"treadmark/internal/worker"
)

// newGrayscaleCommand runs the grayscale worker directly against an image
// file without touching the queue or the daemon.
func newGrayscaleCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "grayscale <image>",
		Short: "Run the grayscale worker against a single image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			imagePath, mimeType, err := resolveImageArg(args[0])
			if err != nil {
				return err
			}
			input, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			requested := mode
			if strings.TrimSpace(requested) == "" {
				requested = cfg.Pipeline.DefaultGrayscaleMode
			}
			parsed, ok := worker.ParseGrayscaleMode(requested)
			if !ok {
				return fmt.Errorf("unknown grayscale mode %q (use standard, clahe, adaptive or gaussian)", requested)
			}

			workers, err := worker.FromConfig(cfg, worker.WithLogger(logging.NewNop()))
			if err != nil {
				return err
			}
			output, err := workers.Invoke(cmd.Context(), worker.KindGrayscale, input, worker.Params{
				MIMEType: mimeType,
				Mode:     parsed,
			})
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = derivedOutputPath(imagePath, "-grayscale.png")
			}
			if err := os.WriteFile(target, output, 0o644); err != nil {
				return fmt.Errorf("write grayscale image: %w", err)
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]string{
					"image":  imagePath,
					"output": target,
					"mode":   string(parsed),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s grayscale image to %s\n", parsed, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Grayscale mode (standard, clahe, adaptive, gaussian)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path for the converted image")
	return cmd
}
