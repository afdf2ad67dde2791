package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"treadmark/internal/config"
	"treadmark/internal/geometry"
	"treadmark/internal/logging"
	"treadmark/internal/notifications"
	"treadmark/internal/queue"
	"treadmark/internal/services"
	"treadmark/internal/transform"
	"treadmark/internal/viewport"
	"treadmark/internal/worker"
)

// Option configures the controller.
type Option func(*Controller)

// WithLogger attaches a logger; without one the controller logs nowhere.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier attaches a notification service for milestone events.
func WithNotifier(notifier notifications.Service) Option {
	return func(c *Controller) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// Controller drives the interactive middle of the pipeline. It owns one
// session per item under edit and serializes operations per item while
// letting different items proceed concurrently. Every successful operation
// persists the item row and session state in a single update; a failed
// operation persists nothing and leaves the item exactly where it was.
type Controller struct {
	cfg      *config.Config
	store    *queue.Store
	workers  *worker.Orchestrator
	logger   *slog.Logger
	notifier notifications.Service

	defaultAlgorithm geometry.Algorithm
	defaultModelSize geometry.ModelSize

	mu       sync.Mutex
	sessions map[int64]*session
}

// New constructs a controller over the given store and worker orchestrator.
func New(cfg *config.Config, store *queue.Store, workers *worker.Orchestrator, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		store:    store,
		workers:  workers,
		logger:   logging.NewNop(),
		sessions: make(map[int64]*session),
	}
	c.defaultAlgorithm, _ = geometry.ParseAlgorithm(cfg.Pipeline.DefaultAlgorithm)
	c.defaultModelSize, _ = geometry.ParseModelSize(cfg.Pipeline.DefaultModelSize)
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.String(logging.FieldComponent, "pipeline"))
	return c
}

// Snapshot is the controller's view of an item, returned by every operation.
// Width and Height are the dimensions of the buffer the operator currently
// sees, not necessarily the original upload.
type Snapshot struct {
	ItemID       int64        `json:"itemId"`
	Title        string       `json:"title"`
	Status       queue.Status `json:"status"`
	Stage        queue.Stage  `json:"stage"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	HasMask      bool         `json:"hasMask"`
	HasGrayscale bool         `json:"hasGrayscale"`
	State        State        `json:"state"`
}

type opFunc func(ctx context.Context, item *queue.Item, s *session) error

// run executes one interactive operation: acquire the item's session, lock
// it, re-read the item row for authority, check the stage guard, apply fn,
// then persist stage and session state together. fn must do all fallible
// work (validation, worker calls, artifact writes) before mutating buffers
// or the item, so an error leaves both untouched.
func (c *Controller) run(ctx context.Context, itemID int64, required queue.Stage, operation string, fn opFunc) (*Snapshot, error) {
	s, err := c.sessionFor(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := c.editableItem(ctx, itemID, operation)
	if err != nil {
		return nil, err
	}
	if item.Stage == "" {
		item.Stage = queue.StagePreprocess
	}
	if required != "" && item.Stage != required {
		return nil, guard(operation, fmt.Sprintf("item is on the %s stage, not %s", item.Stage, required))
	}

	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithStage(ctx, string(item.Stage))
	if err := fn(ctx, item, s); err != nil {
		return nil, err
	}

	encoded, err := s.state.Marshal()
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "pipeline", operation, "encode session state", err)
	}
	item.SessionJSON = encoded
	if err := c.store.Update(ctx, item); err != nil {
		return nil, err
	}
	return c.snapshot(item, s), nil
}

// sessionFor returns the cached session for an item, restoring one from the
// staged artifacts on first access. Restoration happens outside the
// controller lock; a racing caller's session wins and the loser's restore is
// discarded.
func (c *Controller) sessionFor(ctx context.Context, itemID int64) (*session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[itemID]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	item, err := c.editableItem(ctx, itemID, "open session")
	if err != nil {
		return nil, err
	}
	s, err := restore(item, c.cfg.ItemDir(itemID))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[itemID]; ok {
		return existing, nil
	}
	c.sessions[itemID] = s
	return s, nil
}

func (c *Controller) editableItem(ctx context.Context, itemID int64, operation string) (*queue.Item, error) {
	item, err := c.itemByID(ctx, itemID, operation)
	if err != nil {
		return nil, err
	}
	if item.Status != queue.StatusEditing {
		return nil, guard(operation, fmt.Sprintf("item %d is %s, not open for editing", itemID, item.Status))
	}
	return item, nil
}

func (c *Controller) itemByID(ctx context.Context, itemID int64, operation string) (*queue.Item, error) {
	item, err := c.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", operation, fmt.Sprintf("item %d not found", itemID), nil)
	}
	return item, nil
}

// Open warms the session for an item and reports its current snapshot.
func (c *Controller) Open(ctx context.Context, itemID int64) (*Snapshot, error) {
	return c.run(ctx, itemID, "", "open", func(ctx context.Context, item *queue.Item, s *session) error {
		return nil
	})
}

// Crop cuts a region out of the original upload and makes it the working
// image. Coordinates are image pixels, or stage-local display values when
// stageSize is given. Re-cropping always cuts from the original, never from
// a previous crop, and invalidates every product derived from the old
// working image.
func (c *Controller) Crop(ctx context.Context, itemID int64, x0, y0, x1, y1 float64, stageSize *viewport.Size) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StagePreprocess, "crop", func(ctx context.Context, item *queue.Item, s *session) error {
		rect, err := c.cropRect(s.original, x0, y0, x1, y1, stageSize)
		if err != nil {
			return err
		}
		product, err := transform.Crop(s.original, rect)
		if err != nil {
			return err
		}
		if err := s.writeArtifact(s.workingPath(), product); err != nil {
			return err
		}
		s.dropSegmentation(item)
		s.working = product
		s.state.CropApplied = true
		s.state.CropRect = NewRect(rect)
		item.WorkingFile = s.workingPath()
		item.Stage = queue.StageAnnotate

		bounds := product.Bounds()
		logging.WithContext(ctx, c.logger).Info("crop applied",
			logging.Int("width", bounds.Dx()),
			logging.Int("height", bounds.Dy()))
		return nil
	})
}

// SkipCrop advances past the preprocess stage with the full frame. When a
// crop had been applied earlier, the working image is reseeded from the
// original and downstream products are dropped; otherwise nothing changes
// but the stage.
func (c *Controller) SkipCrop(ctx context.Context, itemID int64) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StagePreprocess, "skip crop", func(ctx context.Context, item *queue.Item, s *session) error {
		if s.state.CropApplied {
			if err := s.writeArtifact(s.workingPath(), s.original); err != nil {
				return err
			}
			s.dropSegmentation(item)
			s.working = nil
			s.state.CropApplied = false
			s.state.CropRect = nil
			item.WorkingFile = s.workingPath()
		}
		item.Stage = queue.StageAnnotate
		return nil
	})
}

// Segment validates a prompt payload, invokes the segmentation worker on the
// working image, and composites the returned alpha mask over it. The item
// stays on the annotate stage so the operator can refine the prompt and
// re-segment; each run replaces the previous mask and drops later products.
// Payload coordinates are image pixels, or stage-local display values when
// stageSize is given.
func (c *Controller) Segment(ctx context.Context, itemID int64, payload []byte, stageSize *viewport.Size) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StageAnnotate, "segment", func(ctx context.Context, item *queue.Item, s *session) error {
		base := s.baseBuffer()
		bounds := base.Bounds()
		validator := geometry.Validator{
			Width:            bounds.Dx(),
			Height:           bounds.Dy(),
			DefaultAlgorithm: c.defaultAlgorithm,
			DefaultModelSize: c.defaultModelSize,
		}
		if stageSize != nil {
			metrics, err := c.metricsFor(base, *stageSize)
			if err != nil {
				return err
			}
			validator.Display = metrics
		}
		req, err := validator.Validate(payload)
		if err != nil {
			return err
		}

		input, err := transform.EncodePNG(base)
		if err != nil {
			return err
		}
		workerCtx := services.WithWorker(ctx, string(worker.KindSegmentation))
		output, err := c.workers.Invoke(workerCtx, worker.KindSegmentation, input, worker.SegmentationParams(req, "image/png"))
		if err != nil {
			return err
		}
		maskImg, err := transform.DecodeBytes(output)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "worker", "segmentation", "worker output is not a decodable image", err)
		}
		composite, err := transform.CompositeMask(base, maskImg)
		if err != nil {
			return err
		}
		if err := s.writeArtifact(s.maskPath(), composite); err != nil {
			return err
		}

		s.dropNormalize(item)
		s.mask = composite
		item.MaskFile = s.maskPath()
		run := &SegmentRun{
			Algorithm:   string(req.Algorithm),
			ModelSize:   string(req.ModelSize),
			PromptType:  req.PromptType(),
			CompletedAt: time.Now().UTC(),
		}
		if req.Mode == geometry.ModePoints {
			run.ForegroundPoints = req.ForegroundCount()
			run.BackgroundPoints = len(req.Points) - run.ForegroundPoints
		} else {
			run.BoundaryPoints = len(req.Boundary)
		}
		s.state.Segmentation = run

		logging.WithContext(ctx, c.logger).Info("segmentation completed",
			logging.String("algorithm", run.Algorithm),
			logging.String("model_size", run.ModelSize),
			logging.String("prompt_type", run.PromptType))
		c.publish(ctx, notifications.EventSegmentationCompleted, notifications.Payload{
			"title":     item.ImageTitle,
			"algorithm": run.Algorithm,
		})
		return nil
	})
}

// Advance moves a segmented item from annotate to normalize. It refuses
// while no mask exists.
func (c *Controller) Advance(ctx context.Context, itemID int64) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StageAnnotate, "advance", func(ctx context.Context, item *queue.Item, s *session) error {
		if s.mask == nil {
			return guard("advance", "segment the image before moving on")
		}
		item.Stage = queue.StageNormalize
		return nil
	})
}

// Normalize renders the working image and its mask into a square of the
// requested size with the same rotation and flips, keeping the pair in
// lockstep. A zero TargetSize takes the configured default. The products are
// held in memory and replayed from the recorded options after a restart.
func (c *Controller) Normalize(ctx context.Context, itemID int64, opts transform.Options) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StageNormalize, "normalize", func(ctx context.Context, item *queue.Item, s *session) error {
		if s.mask == nil {
			return guard("normalize", "segment the image before normalizing")
		}
		if opts.TargetSize == 0 {
			opts.TargetSize = c.cfg.Pipeline.SquareSize
		}
		working, err := transform.Apply(s.baseBuffer(), opts)
		if err != nil {
			return err
		}
		mask, err := transform.Apply(s.mask, opts)
		if err != nil {
			return err
		}
		s.dropGrayscale(item)
		s.normWorking = working
		s.normMask = mask
		s.state.Normalize = &NormalizeRun{
			TargetSize:     opts.TargetSize,
			Rotation:       opts.Rotation,
			FlipHorizontal: opts.FlipHorizontal,
			FlipVertical:   opts.FlipVertical,
		}
		item.Stage = queue.StageGrayscale
		return nil
	})
}

// SkipNormalize advances to the grayscale stage at native resolution,
// discarding any normalize pass applied earlier.
func (c *Controller) SkipNormalize(ctx context.Context, itemID int64) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StageNormalize, "skip normalize", func(ctx context.Context, item *queue.Item, s *session) error {
		if s.state.Normalize != nil {
			s.dropNormalize(item)
		}
		item.Stage = queue.StageGrayscale
		return nil
	})
}

// Grayscale runs the grayscale worker over the current view buffer. An empty
// mode takes the configured default. Re-running replaces the previous
// product.
func (c *Controller) Grayscale(ctx context.Context, itemID int64, mode string) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StageGrayscale, "grayscale", func(ctx context.Context, item *queue.Item, s *session) error {
		if strings.TrimSpace(mode) == "" {
			mode = c.cfg.Pipeline.DefaultGrayscaleMode
		}
		parsed, ok := worker.ParseGrayscaleMode(mode)
		if !ok {
			return services.Wrap(services.ErrValidation, "pipeline", "grayscale", fmt.Sprintf("unknown grayscale mode %q", mode), nil)
		}

		input, err := transform.EncodePNG(s.viewBuffer(queue.StageGrayscale))
		if err != nil {
			return err
		}
		workerCtx := services.WithWorker(ctx, string(worker.KindGrayscale))
		output, err := c.workers.Invoke(workerCtx, worker.KindGrayscale, input, worker.Params{MIMEType: "image/png", Mode: parsed})
		if err != nil {
			return err
		}
		product, err := transform.DecodeBytes(output)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "worker", "grayscale", "worker output is not a decodable image", err)
		}
		if err := s.writeArtifact(s.grayPath(), product); err != nil {
			return err
		}

		s.gray = product
		s.state.GrayscaleMode = string(parsed)
		item.GrayscaleFile = s.grayPath()
		item.Stage = queue.StageReview

		logging.WithContext(ctx, c.logger).Info("grayscale applied",
			logging.String("mode", string(parsed)))
		return nil
	})
}

// SkipGrayscale advances to review in color, discarding any grayscale
// product from an earlier pass.
func (c *Controller) SkipGrayscale(ctx context.Context, itemID int64) (*Snapshot, error) {
	return c.run(ctx, itemID, queue.StageGrayscale, "skip grayscale", func(ctx context.Context, item *queue.Item, s *session) error {
		if s.gray != nil || s.state.GrayscaleMode != "" {
			s.dropGrayscale(item)
		}
		item.Stage = queue.StageReview
		return nil
	})
}

// Back moves the item to an earlier stage. Buffers and products survive the
// move; only redoing an upstream operation invalidates downstream work.
func (c *Controller) Back(ctx context.Context, itemID int64, target queue.Stage) (*Snapshot, error) {
	return c.run(ctx, itemID, "", "back", func(ctx context.Context, item *queue.Item, s *session) error {
		if queue.StageIndex(target) < 0 {
			return services.Wrap(services.ErrValidation, "pipeline", "back", fmt.Sprintf("unknown stage %q", target), nil)
		}
		if !queue.StageBefore(target, item.Stage) {
			return guard("back", fmt.Sprintf("%s is not an earlier stage than %s", target, item.Stage))
		}
		item.Stage = target
		return nil
	})
}

// Save accepts the reviewed result: it persists the final mask, freezes the
// annotation metadata, and hands the item to the export lane. The label must
// be one of the configured set; an empty dataset root falls back to the last
// root used and then to the configured default. Refusing a save (by simply
// not calling it) changes nothing.
func (c *Controller) Save(ctx context.Context, itemID int64, label, datasetRoot string) (*Snapshot, error) {
	snap, err := c.run(ctx, itemID, queue.StageReview, "save", func(ctx context.Context, item *queue.Item, s *session) error {
		final := s.finalMask()
		if final == nil {
			return services.Wrap(services.ErrValidation, "pipeline", "save", "cannot save without a segmentation mask", nil)
		}
		resolvedLabel, err := c.resolveLabel(label)
		if err != nil {
			return err
		}
		resolvedRoot, err := c.resolveDatasetRoot(ctx, datasetRoot)
		if err != nil {
			return err
		}

		// The persisted mask becomes the post-normalize render so the export
		// lane ships exactly what the operator reviewed.
		if err := s.writeArtifact(s.maskPath(), final); err != nil {
			return err
		}
		item.MaskFile = s.maskPath()

		s.state.Finalized = true
		meta := c.buildMetadata(item, s, resolvedLabel, resolvedRoot)
		encoded, err := json.Marshal(meta)
		if err != nil {
			return services.Wrap(services.ErrResource, "pipeline", "save", "encode annotation metadata", err)
		}
		item.MetadataJSON = string(encoded)
		item.Label = resolvedLabel
		item.Status = queue.StatusExporting
		item.SetProgress("Export", "Queued for export", 0)

		if err := c.store.SetLastDatasetRoot(ctx, resolvedRoot); err != nil {
			logging.WithContext(ctx, c.logger).Warn("could not persist dataset root default",
				logging.Error(err))
		}
		logging.WithContext(ctx, c.logger).Info("annotation saved",
			logging.String("label", resolvedLabel),
			logging.String("dataset_root", resolvedRoot))
		return nil
	})
	if err != nil {
		return nil, err
	}
	// The export lane owns the item now; a failed export rolls it back to
	// editing and the session is restored from the finalized artifacts.
	c.Release(itemID)
	return snap, nil
}

// Preview returns the bytes and MIME type of the buffer the operator should
// see. Items under edit render the live session view as PNG; settled items
// fall back to the best staged artifact.
func (c *Controller) Preview(ctx context.Context, itemID int64) ([]byte, string, error) {
	item, err := c.itemByID(ctx, itemID, "preview")
	if err != nil {
		return nil, "", err
	}
	if item.Status == queue.StatusEditing {
		s, err := c.sessionFor(ctx, itemID)
		if err != nil {
			return nil, "", err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		data, err := transform.EncodePNG(s.viewBuffer(stageOf(item)))
		if err != nil {
			return nil, "", err
		}
		return data, "image/png", nil
	}
	for _, candidate := range []struct {
		path string
		mime string
	}{
		{item.GrayscaleFile, "image/png"},
		{item.WorkingFile, "image/png"},
		{item.OriginalFile, item.MimeType},
	} {
		if strings.TrimSpace(candidate.path) == "" {
			continue
		}
		data, err := os.ReadFile(candidate.path)
		if err != nil {
			continue
		}
		mime := candidate.mime
		if strings.TrimSpace(mime) == "" {
			mime = "application/octet-stream"
		}
		return data, mime, nil
	}
	return nil, "", services.Wrap(services.ErrNotFound, "pipeline", "preview", fmt.Sprintf("no image artifact available for item %d", itemID), nil)
}

// MaskPNG returns the current mask rendered as PNG, or a not-found error
// while no segmentation has run.
func (c *Controller) MaskPNG(ctx context.Context, itemID int64) ([]byte, error) {
	item, err := c.itemByID(ctx, itemID, "mask preview")
	if err != nil {
		return nil, err
	}
	if item.Status == queue.StatusEditing {
		s, err := c.sessionFor(ctx, itemID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		mask := s.maskBuffer(stageOf(item))
		if mask == nil {
			return nil, services.Wrap(services.ErrNotFound, "pipeline", "mask preview", fmt.Sprintf("item %d has no segmentation mask yet", itemID), nil)
		}
		return transform.EncodePNG(mask)
	}
	if strings.TrimSpace(item.MaskFile) != "" {
		if data, err := os.ReadFile(item.MaskFile); err == nil {
			return data, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "pipeline", "mask preview", fmt.Sprintf("item %d has no segmentation mask", itemID), nil)
}

// Viewport computes letterbox metrics for rendering the item's current view
// buffer on a stage surface of the given size.
func (c *Controller) Viewport(ctx context.Context, itemID int64, stageSize viewport.Size) (viewport.Metrics, error) {
	item, err := c.editableItem(ctx, itemID, "viewport")
	if err != nil {
		return viewport.Metrics{}, err
	}
	s, err := c.sessionFor(ctx, itemID)
	if err != nil {
		return viewport.Metrics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics, err := c.metricsFor(s.viewBuffer(stageOf(item)), stageSize)
	if err != nil {
		return viewport.Metrics{}, err
	}
	return *metrics, nil
}

// Snapshot reports the current pipeline view of an item without mutating it.
func (c *Controller) Snapshot(ctx context.Context, itemID int64) (*Snapshot, error) {
	item, err := c.itemByID(ctx, itemID, "snapshot")
	if err != nil {
		return nil, err
	}
	if item.Status != queue.StatusEditing {
		state, err := Unmarshal(item.SessionJSON)
		if err != nil {
			state = State{}
		}
		return &Snapshot{
			ItemID:       item.ID,
			Title:        item.ImageTitle,
			Status:       item.Status,
			Stage:        item.Stage,
			Width:        item.OriginalWidth,
			Height:       item.OriginalHeight,
			HasMask:      item.MaskFile != "",
			HasGrayscale: item.GrayscaleFile != "",
			State:        state,
		}, nil
	}
	s, err := c.sessionFor(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.snapshot(item, s), nil
}

// Release drops an item's in-memory session. Artifacts and recorded state
// stay on disk; the next operation rebuilds the session from them.
func (c *Controller) Release(itemID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, itemID)
}

// ReleaseAll drops every cached session, used at daemon shutdown.
func (c *Controller) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = make(map[int64]*session)
}

func (c *Controller) snapshot(item *queue.Item, s *session) *Snapshot {
	stage := stageOf(item)
	width, height := item.OriginalWidth, item.OriginalHeight
	if view := s.viewBuffer(stage); view != nil {
		bounds := view.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}
	return &Snapshot{
		ItemID:       item.ID,
		Title:        item.ImageTitle,
		Status:       item.Status,
		Stage:        stage,
		Width:        width,
		Height:       height,
		HasMask:      s.maskBuffer(stage) != nil,
		HasGrayscale: s.gray != nil,
		State:        s.state,
	}
}

func (c *Controller) cropRect(base image.Image, x0, y0, x1, y1 float64, stageSize *viewport.Size) (image.Rectangle, error) {
	if stageSize != nil {
		metrics, err := c.metricsFor(base, *stageSize)
		if err != nil {
			return image.Rectangle{}, err
		}
		return metrics.RectToImage(x0, y0, x1, y1), nil
	}
	for _, v := range []float64{x0, y0, x1, y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return image.Rectangle{}, services.Wrap(services.ErrValidation, "pipeline", "crop", "crop rectangle has a non-finite coordinate", nil)
		}
	}
	return image.Rect(
		int(math.Round(x0)), int(math.Round(y0)),
		int(math.Round(x1)), int(math.Round(y1)),
	), nil
}

func (c *Controller) metricsFor(img image.Image, stageSize viewport.Size) (*viewport.Metrics, error) {
	bounds := img.Bounds()
	metrics, err := viewport.Compute(viewport.Size{Width: bounds.Dx(), Height: bounds.Dy()}, stageSize)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "viewport", err.Error(), nil)
	}
	return &metrics, nil
}

func (c *Controller) resolveLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", services.Wrap(services.ErrValidation, "pipeline", "save", "a label is required", nil)
	}
	for _, known := range c.cfg.Pipeline.Labels {
		if strings.EqualFold(label, known) {
			return known, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "pipeline", "save",
		fmt.Sprintf("unknown label %q (configured labels: %s)", label, strings.Join(c.cfg.Pipeline.Labels, ", ")), nil)
}

func (c *Controller) resolveDatasetRoot(ctx context.Context, root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		last, err := c.store.LastDatasetRoot(ctx)
		if err != nil {
			return "", err
		}
		root = strings.TrimSpace(last)
	}
	if root == "" {
		root = strings.TrimSpace(c.cfg.Paths.DatasetDir)
	}
	if root == "" {
		return "", services.Wrap(services.ErrValidation, "pipeline", "save", "no dataset destination configured; pass one explicitly", nil)
	}
	expanded, err := config.ExpandPath(root)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "pipeline", "save", fmt.Sprintf("invalid dataset root %q", root), err)
	}
	return expanded, nil
}

func (c *Controller) buildMetadata(item *queue.Item, s *session, label, datasetRoot string) queue.Metadata {
	meta := queue.NewBasicMetadata(item.ImageTitle)
	meta.LabelValue = label
	meta.SourceFilename = filepath.Base(item.SourcePath)
	meta.MimeType = item.MimeType
	meta.OriginalWidth = item.OriginalWidth
	meta.OriginalHeight = item.OriginalHeight
	meta.CropApplied = s.state.CropApplied
	if run := s.state.Segmentation; run != nil {
		meta.Algorithm = run.Algorithm
		meta.ModelSize = run.ModelSize
		meta.PromptType = run.PromptType
		meta.ForegroundPoints = run.ForegroundPoints
		meta.BackgroundPoints = run.BackgroundPoints
		meta.BoundaryPoints = run.BoundaryPoints
	}
	if run := s.state.Normalize; run != nil {
		meta.SquareSize = run.TargetSize
		meta.RotationDegrees = run.Rotation
		meta.FlipHorizontal = run.FlipHorizontal
		meta.FlipVertical = run.FlipVertical
	}
	meta.GrayscaleMode = s.state.GrayscaleMode
	meta.AnnotatedAt = time.Now().UTC().Format(time.RFC3339)
	meta.DatasetRoot = datasetRoot
	return meta
}

func (c *Controller) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, c.logger).Debug("notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}

func stageOf(item *queue.Item) queue.Stage {
	if item.Stage == "" {
		return queue.StagePreprocess
	}
	return item.Stage
}

func guard(operation, message string) error {
	return services.Wrap(services.ErrStageGuard, "pipeline", operation, message, nil)
}
