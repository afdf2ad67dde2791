package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"treadmark/internal/ingest"
	"treadmark/internal/ipc"
	"treadmark/internal/logging"
	"treadmark/internal/queue"
	"treadmark/internal/stageexec"
)

// imageExtensions mirrors the daemon's accepted upload types.
var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var preprocess bool

	cmd := &cobra.Command{
		Use:   "add <image>...",
		Short: "Add tire images to the annotation queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return errors.New("--title applies to a single image only")
			}

			paths := make([]string, 0, len(args))
			for _, arg := range args {
				absPath, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				info, err := os.Stat(absPath)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("file does not exist: %s", absPath)
					}
					return fmt.Errorf("inspect file: %w", err)
				}
				if info.IsDir() {
					return fmt.Errorf("%s is a directory", absPath)
				}
				ext := strings.ToLower(filepath.Ext(info.Name()))
				if _, ok := imageExtensions[ext]; !ok {
					return fmt.Errorf("unsupported image extension %q (use .png, .jpg or .jpeg)", ext)
				}
				paths = append(paths, absPath)
			}

			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				return addViaDaemon(cmd, client, paths, title)
			}
			return addViaStore(cmd, ctx, paths, title, preprocess)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Display title for the image (single image only)")
	cmd.Flags().BoolVar(&preprocess, "preprocess", false, "Run the preprocess stage immediately when the daemon is not running")
	return cmd
}

func addViaDaemon(cmd *cobra.Command, client *ipc.Client, paths []string, title string) error {
	out := cmd.OutOrStdout()
	for _, path := range paths {
		resp, err := client.AddImage(path, title)
		if err != nil {
			return err
		}
		if resp == nil {
			return errors.New("empty response from daemon")
		}
		if resp.Duplicate {
			fmt.Fprintf(out, "Image already queued as item #%d (%s)\n", resp.Item.ID, filepath.Base(path))
			continue
		}
		fmt.Fprintf(out, "Queued image as item #%d (%s)\n", resp.Item.ID, filepath.Base(path))
	}
	return nil
}

func addViaStore(cmd *cobra.Command, ctx *commandContext, paths []string, title string, preprocess bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	logger := logging.NewNop()
	for _, path := range paths {
		if limit := cfg.Pipeline.MaxImageMB; limit > 0 {
			if info, err := os.Stat(path); err == nil && info.Size() > int64(limit)<<20 {
				return fmt.Errorf("%s exceeds the configured %d MB limit", filepath.Base(path), limit)
			}
		}

		fingerprint, err := fileSHA256(path)
		if err != nil {
			return fmt.Errorf("fingerprint image: %w", err)
		}
		if existing, err := store.FindByFingerprint(cmd.Context(), fingerprint); err != nil {
			return err
		} else if existing != nil && existing.IsInWorkflow() {
			fmt.Fprintf(out, "Image already queued as item #%d (%s)\n", existing.ID, filepath.Base(path))
			continue
		}

		itemTitle := strings.TrimSpace(title)
		if itemTitle == "" {
			itemTitle = queue.InferTitleFromPath(path)
		}
		mimeType := imageExtensions[strings.ToLower(filepath.Ext(path))]
		item, err := store.NewItem(cmd.Context(), path, itemTitle, mimeType, fingerprint)
		if err != nil {
			return fmt.Errorf("enqueue image: %w", err)
		}
		fmt.Fprintf(out, "Queued image as item #%d (%s)\n", item.ID, filepath.Base(path))

		if !preprocess {
			continue
		}
		err = stageexec.Run(cmd.Context(), stageexec.Options{
			Logger:     logger,
			Store:      store,
			Handler:    ingest.NewIngester(cfg, store, logger),
			StageName:  "preprocess",
			Processing: queue.StatusIngesting,
			Done:       queue.StatusEditing,
			Item:       item,
		})
		if err != nil {
			return fmt.Errorf("preprocess item %d: %w", item.ID, err)
		}
		fmt.Fprintf(out, "Item #%d preprocessed, awaiting annotation\n", item.ID)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
