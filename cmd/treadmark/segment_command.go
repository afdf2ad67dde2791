package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"treadmark/internal/geometry"
	"treadmark/internal/logging"
	"treadmark/internal/transform"
	"treadmark/internal/worker"
)

// newSegmentCommand runs the segmentation worker directly against an image
// file without touching the queue or the daemon. Useful for smoke-testing
// worker scripts and for one-off mask generation.
func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var geometryPath string
	var outputPath string
	var algorithm string
	var modelSize string

	cmd := &cobra.Command{
		Use:   "segment <image>",
		Short: "Run the segmentation worker against a single image",
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
			img, err := transform.DecodeBytes(input)
			if err != nil {
				return fmt.Errorf("decode image: %w", err)
			}
			bounds := img.Bounds()

			if strings.TrimSpace(geometryPath) == "" {
				return errors.New("--geometry is required")
			}
			payload, err := os.ReadFile(geometryPath)
			if err != nil {
				return fmt.Errorf("read geometry payload: %w", err)
			}

			defaultAlgorithm, _ := geometry.ParseAlgorithm(cfg.Pipeline.DefaultAlgorithm)
			if algorithm != "" {
				parsed, ok := geometry.ParseAlgorithm(algorithm)
				if !ok {
					return fmt.Errorf("unknown algorithm %q", algorithm)
				}
				defaultAlgorithm = parsed
			}
			defaultModelSize, _ := geometry.ParseModelSize(cfg.Pipeline.DefaultModelSize)
			if modelSize != "" {
				parsed, ok := geometry.ParseModelSize(modelSize)
				if !ok {
					return fmt.Errorf("unknown model size %q", modelSize)
				}
				defaultModelSize = parsed
			}

			validator := geometry.Validator{
				Width:            bounds.Dx(),
				Height:           bounds.Dy(),
				DefaultAlgorithm: defaultAlgorithm,
				DefaultModelSize: defaultModelSize,
			}
			req, err := validator.Validate(payload)
			if err != nil {
				return err
			}

			workers, err := worker.FromConfig(cfg, worker.WithLogger(logging.NewNop()))
			if err != nil {
				return err
			}
			mask, err := workers.Invoke(cmd.Context(), worker.KindSegmentation, input, worker.SegmentationParams(req, mimeType))
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = derivedOutputPath(imagePath, "-mask.png")
			}
			if err := os.WriteFile(target, mask, 0o644); err != nil {
				return fmt.Errorf("write mask: %w", err)
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"image":  imagePath,
					"mask":   target,
					"prompt": req.PromptType(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote mask to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&geometryPath, "geometry", "g", "", "Path to the prompt geometry JSON payload")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path for the mask PNG")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Segmentation algorithm override")
	cmd.Flags().StringVar(&modelSize, "model-size", "", "Model size override")
	return cmd
}

func resolveImageArg(arg string) (string, string, error) {
	absPath, err := filepath.Abs(arg)
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", "", fmt.Errorf("inspect image: %w", err)
	}
	if info.IsDir() {
		return "", "", fmt.Errorf("%s is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	mimeType, ok := imageExtensions[ext]
	if !ok {
		return "", "", fmt.Errorf("unsupported image extension %q (use .png, .jpg or .jpeg)", ext)
	}
	return absPath, mimeType, nil
}

func derivedOutputPath(imagePath, suffix string) string {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	return base + suffix
}
