package ingest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/dustin/go-humanize"

	"treadmark/internal/config"
	"treadmark/internal/logging"
	"treadmark/internal/notifications"
	"treadmark/internal/queue"
	"treadmark/internal/services"
	"treadmark/internal/stage"
	"treadmark/internal/transform"
)

// Ingester stages uploaded images for annotation: it validates the upload,
// records intrinsic dimensions, and seeds the per-item artifact directory
// with the original bytes and a PNG working copy.
type Ingester struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
}

// NewIngester constructs the ingest handler using default dependencies.
func NewIngester(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Ingester {
	return NewIngesterWithDependencies(cfg, store, logger, notifications.NewService(cfg))
}

// NewIngesterWithDependencies allows injecting all collaborators (used in tests).
func NewIngesterWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Ingester {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "ingest"))
	}
	return &Ingester{store: store, cfg: cfg, logger: stageLogger, notifier: notifier}
}

func (g *Ingester) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, g.logger)
	item.InitProgress("Ingest", "Importing image")
	logger.Info(
		"starting ingest",
		logging.String("image_title", strings.TrimSpace(item.ImageTitle)),
		logging.String("source_path", strings.TrimSpace(item.SourcePath)),
	)
	if g.notifier != nil {
		if err := g.notifier.Publish(ctx, notifications.EventImageAdded, notifications.Payload{"title": item.ImageTitle}); err != nil {
			logger.Warn("failed to send ingest notification", logging.Error(err))
		}
	}
	return nil
}

func (g *Ingester) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, g.logger)
	source := strings.TrimSpace(item.SourcePath)
	if source == "" {
		return services.Wrap(
			services.ErrValidation,
			"ingest",
			"locate upload",
			"No source image recorded for this item",
			nil,
		)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"ingest",
			"read upload",
			"Unable to read the uploaded image",
			err,
		)
	}
	if limit := g.cfg.Pipeline.MaxImageMB; limit > 0 && len(data) > limit<<20 {
		return services.Wrap(
			services.ErrValidation,
			"ingest",
			"check size",
			fmt.Sprintf("Image is %s; the configured limit is %d MB", humanize.Bytes(uint64(len(data))), limit),
			nil,
		)
	}

	mimeType := strings.TrimSpace(item.MimeType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !transform.SupportedMIME(mimeType) {
		return services.Wrap(
			services.ErrValidation,
			"ingest",
			"check format",
			fmt.Sprintf("Unsupported image type %q; upload a PNG or JPEG", mimeType),
			nil,
		)
	}

	img, err := transform.DecodeBytes(data)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	logger.Info(
		"decoded upload",
		logging.String("mime_type", mimeType),
		logging.Int("width", bounds.Dx()),
		logging.Int("height", bounds.Dy()),
		logging.String("size", humanize.Bytes(uint64(len(data)))),
	)

	g.updateProgress(ctx, item, "Staging artifacts", 50)

	dir := g.cfg.ItemDir(item.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(
			services.ErrResource,
			"ingest",
			"create item dir",
			"Failed to create the staging directory for this item",
			err,
		)
	}
	originalPath := filepath.Join(dir, "original."+transform.ExtensionForMIME(mimeType))
	if err := os.WriteFile(originalPath, data, 0o644); err != nil {
		return services.Wrap(
			services.ErrResource,
			"ingest",
			"stage original",
			"Failed to copy the upload into staging",
			err,
		)
	}
	workingBytes, err := transform.EncodePNG(img)
	if err != nil {
		return err
	}
	workingPath := filepath.Join(dir, "working.png")
	if err := os.WriteFile(workingPath, workingBytes, 0o644); err != nil {
		return services.Wrap(
			services.ErrResource,
			"ingest",
			"seed working copy",
			"Failed to write the working copy",
			err,
		)
	}

	item.MimeType = mimeType
	item.OriginalWidth = bounds.Dx()
	item.OriginalHeight = bounds.Dy()
	item.OriginalFile = originalPath
	item.WorkingFile = workingPath
	item.Stage = queue.StagePreprocess
	item.SetProgressComplete("Ingest", "Ready for annotation")
	logger.Info(
		"ingest completed",
		logging.String("original_file", originalPath),
		logging.String("working_file", workingPath),
	)
	return nil
}

// HealthCheck verifies that the staging directory is configured and writable.
func (g *Ingester) HealthCheck(ctx context.Context) stage.Health {
	const name = "ingest"
	if g.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	staging := strings.TrimSpace(g.cfg.Paths.StagingDir)
	if staging == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if info, err := os.Stat(staging); err != nil || !info.IsDir() {
		return stage.Unhealthy(name, fmt.Sprintf("staging directory unavailable: %s", staging))
	}
	return stage.Healthy(name)
}

func (g *Ingester) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, g.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := g.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist ingest progress", logging.Error(err))
		return
	}
	*item = copy
}
