package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"treadmark/internal/config"
	"treadmark/internal/fileutil"
	"treadmark/internal/logging"
	"treadmark/internal/notifications"
	"treadmark/internal/queue"
	"treadmark/internal/services"
	"treadmark/internal/stage"
)

const (
	maskSuffix    = "_mask.png"
	graySuffix    = "_gray.png"
	sidecarSuffix = ".json"
)

// Organizer writes finalized annotations into the labeled dataset tree.
type Organizer struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
}

// NewOrganizer constructs the export stage handler using default dependencies.
func NewOrganizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Organizer {
	return NewOrganizerWithDependencies(cfg, store, logger, notifications.NewService(cfg))
}

// NewOrganizerWithDependencies allows injecting collaborators (used in tests).
func NewOrganizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Organizer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "organizer"))
	}
	return &Organizer{store: store, cfg: cfg, logger: stageLogger, notifier: notifier}
}

func (o *Organizer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, o.logger)
	if item.ProgressStage == "" {
		item.ProgressStage = "Export"
	}
	item.ProgressMessage = "Preparing dataset export"
	item.ProgressPercent = 0
	item.ErrorMessage = ""
	logger.Info(
		"starting export preparation",
		logging.String("image_title", strings.TrimSpace(item.ImageTitle)),
		logging.String("mask_file", strings.TrimSpace(item.MaskFile)),
	)
	return nil
}

func (o *Organizer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, o.logger)
	logger.Info(
		"starting export",
		logging.String("mask_file", strings.TrimSpace(item.MaskFile)),
		logging.String("label", strings.TrimSpace(item.Label)),
	)
	if err := stage.RequireArtifact("export", "segmentation mask", item.MaskFile); err != nil {
		return err
	}

	meta := queue.MetadataFromJSON(item.MetadataJSON, item.ImageTitle)
	if item.MetadataJSON == "" || strings.TrimSpace(meta.Title()) == "" {
		fallbackTitle := item.ImageTitle
		if fallbackTitle == "" {
			base := strings.TrimSpace(filepath.Base(item.MaskFile))
			fallbackTitle = strings.TrimSuffix(base, filepath.Ext(base))
		}
		basic := queue.NewBasicMetadata(fallbackTitle)
		basic.LabelValue = item.Label
		encoded, err := json.Marshal(basic)
		if err != nil {
			return services.Wrap(services.ErrTransient, "export", "encode metadata", "Failed to encode fallback metadata", err)
		}
		item.MetadataJSON = string(encoded)
		meta = basic
		if err := o.store.Update(ctx, item); err != nil {
			logger.Warn("failed to persist fallback metadata", logging.Error(err))
		}
	}

	root := strings.TrimSpace(meta.DatasetRoot)
	if root == "" {
		root = strings.TrimSpace(o.cfg.Paths.DatasetDir)
	}
	if root == "" {
		return services.Wrap(
			services.ErrConfiguration,
			"export",
			"resolve dataset root",
			"Dataset directory not configured; set dataset_dir in your treadmark config.toml or pass a destination on save",
			nil,
		)
	}
	labelDir := meta.LabelDir(root)
	if err := os.MkdirAll(labelDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "export", "ensure label dir", "Failed to create dataset label directory", err)
	}

	o.updateProgress(ctx, item, "Writing dataset artifacts", 25)
	base, err := o.nextExportBase(labelDir, meta.GetFilename())
	if err != nil {
		return services.Wrap(services.ErrTransient, "export", "allocate export filename", "Unable to allocate a dataset filename", err)
	}
	maskPath := filepath.Join(labelDir, base+maskSuffix)
	logger.Info("writing mask into dataset", logging.String("target", maskPath))
	if err := fileutil.CopyFileVerified(item.MaskFile, maskPath); err != nil {
		return services.Wrap(services.ErrResource, "export", "copy mask", "Failed to copy the segmentation mask into the dataset", err)
	}
	if err := o.validateExportedArtifact(maskPath); err != nil {
		return err
	}

	grayExported := false
	if gray := strings.TrimSpace(item.GrayscaleFile); gray != "" {
		if err := stage.RequireArtifact("export", "grayscale image", gray); err != nil {
			return err
		}
		grayPath := filepath.Join(labelDir, base+graySuffix)
		if err := fileutil.CopyFileVerified(gray, grayPath); err != nil {
			return services.Wrap(services.ErrResource, "export", "copy grayscale", "Failed to copy the grayscale image into the dataset", err)
		}
		grayExported = true
	}

	o.updateProgress(ctx, item, "Writing metadata sidecar", 70)
	meta.ExportedAt = time.Now().UTC().Format(time.RFC3339)
	meta.DatasetRoot = ""
	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "export", "encode metadata", "Failed to encode the metadata sidecar", err)
	}
	if err := os.WriteFile(filepath.Join(labelDir, base+sidecarSuffix), sidecar, 0o644); err != nil {
		return services.Wrap(services.ErrResource, "export", "write sidecar", "Failed to write the metadata sidecar", err)
	}
	if encoded, err := json.Marshal(meta); err == nil {
		item.MetadataJSON = string(encoded)
	}

	item.ExportedFile = maskPath
	item.SetProgressComplete("Export", fmt.Sprintf("Added to dataset: %s", filepath.Base(maskPath)))
	logger.Info(
		"export completed",
		logging.String("exported_file", maskPath),
		logging.Bool("grayscale_exported", grayExported),
	)

	if o.notifier != nil {
		title := strings.TrimSpace(meta.Title())
		if title == "" {
			title = strings.TrimSpace(item.ImageTitle)
		}
		if title == "" {
			title = filepath.Base(maskPath)
		}
		if err := o.notifier.Publish(ctx, notifications.EventExportCompleted, notifications.Payload{
			"title":     title,
			"finalFile": filepath.Base(maskPath),
		}); err != nil {
			logger.Warn("export notifier failed", logging.Error(err))
		}
	}

	return nil
}

// nextExportBase allocates a collision-free base name inside the label
// directory. The first item keeps the sanitized title; later duplicates get
// numeric suffixes.
func (o *Organizer) nextExportBase(dir, base string) (string, error) {
	const maxAttempts = 10000
	if strings.TrimSpace(base) == "" {
		base = "untitled-image"
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		if _, err := os.Stat(filepath.Join(dir, candidate+maskSuffix)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted dataset filename slots in %s", dir)
}

func (o *Organizer) validateExportedArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "export", "validate output", "Failed to stat the exported artifact", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "export", "validate output", "Exported artifact points to a directory", nil)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "export", "validate output", fmt.Sprintf("Exported file %q is empty", path), nil)
	}
	return nil
}

// HealthCheck verifies export prerequisites. An empty dataset_dir is fine as
// long as saves carry their own destination, so only a configured-but-missing
// directory is reported unhealthy.
func (o *Organizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "export"
	if o.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	root := strings.TrimSpace(o.cfg.Paths.DatasetDir)
	if root == "" {
		return stage.Healthy(name)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return stage.Unhealthy(name, fmt.Sprintf("dataset directory unavailable: %s", root))
	}
	return stage.Healthy(name)
}

func (o *Organizer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, o.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := o.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist export progress", logging.Error(err))
		return
	}
	*item = copy
}
