package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"treadmark/internal/config"
	"treadmark/internal/pipeline"
	"treadmark/internal/queue"
	"treadmark/internal/services"
	"treadmark/internal/testsupport"
	"treadmark/internal/transform"
	"treadmark/internal/viewport"
	"treadmark/internal/worker"
)

func newController(t *testing.T) (*pipeline.Controller, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubWorkers(),
		testsupport.WithLabels("radial", "bias", "worn"))
	store := testsupport.MustOpenStore(t, cfg)
	workers, err := worker.FromConfig(cfg)
	if err != nil {
		t.Fatalf("worker.FromConfig: %v", err)
	}
	return pipeline.New(cfg, store, workers), store, cfg
}

func seedEditingItem(t *testing.T, cfg *config.Config, store *queue.Store, title string, width, height int) *queue.Item {
	t.Helper()
	item := testsupport.NewItem(t, store, title, "fp-"+title)
	original := filepath.Join(cfg.ItemDir(item.ID), "original.png")
	testsupport.WritePNG(t, original, width, height)
	item.Status = queue.StatusEditing
	item.Stage = queue.StagePreprocess
	item.OriginalFile = original
	item.OriginalWidth = width
	item.OriginalHeight = height
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

// stepper returns a helper that fails the test on any operation error, so
// multi-step pipeline walks stay readable.
func stepper(t *testing.T) func(*pipeline.Snapshot, error) *pipeline.Snapshot {
	return func(snap *pipeline.Snapshot, err error) *pipeline.Snapshot {
		t.Helper()
		if err != nil {
			t.Fatalf("pipeline step: %v", err)
		}
		return snap
	}
}

const pointPayload = `{"points":[{"x":20,"y":15,"label":"foreground"}]}`

func decodePNGSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfgImg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return cfgImg.Width, cfgImg.Height
}

func TestCropAdvancesToAnnotate(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()

	snap, err := ctrl.Crop(ctx, item.ID, 10, 10, 60, 60, nil)
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if snap.Stage != queue.StageAnnotate {
		t.Fatalf("expected annotate stage after crop, got %s", snap.Stage)
	}
	if snap.Width != 50 || snap.Height != 50 {
		t.Fatalf("expected 50x50 view after crop, got %dx%d", snap.Width, snap.Height)
	}
	if !snap.State.CropApplied || snap.State.CropRect == nil {
		t.Fatalf("expected crop recorded in state, got %+v", snap.State)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.WorkingFile == "" {
		t.Fatal("expected working file recorded on item")
	}
	if _, err := os.Stat(stored.WorkingFile); err != nil {
		t.Fatalf("expected working artifact on disk: %v", err)
	}
}

func TestCropRejectsTinyRegion(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()

	_, err := ctrl.Crop(ctx, item.ID, 0, 0, 2, 2, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for tiny crop, got %v", err)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Stage != queue.StagePreprocess {
		t.Fatalf("expected item to stay on preprocess, got %s", stored.Stage)
	}
}

func TestSkipCropAfterCropRestoresFullFrame(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.Crop(ctx, item.ID, 10, 10, 60, 60, nil))
	step(ctrl.Back(ctx, item.ID, queue.StagePreprocess))

	snap, err := ctrl.SkipCrop(ctx, item.ID)
	if err != nil {
		t.Fatalf("skip crop: %v", err)
	}
	if snap.Stage != queue.StageAnnotate {
		t.Fatalf("expected annotate stage, got %s", snap.Stage)
	}
	if snap.State.CropApplied {
		t.Fatal("expected crop cleared after skip")
	}
	if snap.Width != 100 || snap.Height != 80 {
		t.Fatalf("expected full frame view, got %dx%d", snap.Width, snap.Height)
	}
}

func TestAdvanceRefusesWithoutMask(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))

	_, err := ctrl.Advance(ctx, item.ID)
	if !errors.Is(err, services.ErrStageGuard) {
		t.Fatalf("expected stage guard error, got %v", err)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Stage != queue.StageAnnotate {
		t.Fatalf("expected item to stay on annotate, got %s", stored.Stage)
	}
	if stored.Status != queue.StatusEditing {
		t.Fatalf("expected item to stay editing, got %s", stored.Status)
	}
}

func TestSegmentProducesMaskAndStaysOnAnnotate(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))

	snap, err := ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if snap.Stage != queue.StageAnnotate {
		t.Fatalf("expected to stay on annotate for refinement, got %s", snap.Stage)
	}
	if !snap.HasMask {
		t.Fatal("expected mask after segmentation")
	}
	run := snap.State.Segmentation
	if run == nil {
		t.Fatal("expected segmentation recorded in state")
	}
	if run.Algorithm != cfg.Pipeline.DefaultAlgorithm {
		t.Fatalf("expected configured default algorithm %q, got %q", cfg.Pipeline.DefaultAlgorithm, run.Algorithm)
	}
	if run.ForegroundPoints != 1 || run.BackgroundPoints != 0 {
		t.Fatalf("unexpected point counts: %+v", run)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.MaskFile == "" {
		t.Fatal("expected mask file recorded on item")
	}
	if _, err := os.Stat(stored.MaskFile); err != nil {
		t.Fatalf("expected mask artifact on disk: %v", err)
	}

	if _, err := ctrl.Advance(ctx, item.ID); err != nil {
		t.Fatalf("advance after segmentation: %v", err)
	}
}

func TestSegmentRejectsOutOfBoundsPrompt(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))

	payload := `{"points":[{"x":5000,"y":15,"label":"foreground"}]}`
	_, err := ctrl.Segment(ctx, item.ID, []byte(payload), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	snap, err := ctrl.Snapshot(ctx, item.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.HasMask {
		t.Fatal("expected no mask after rejected prompt")
	}
}

func TestSegmentMapsDisplayCoordinates(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))

	// A 200x100 stage letterboxes the 100x80 image horizontally; the stage
	// center lands inside the displayed rectangle, the left margin does not.
	stage := &viewport.Size{Width: 200, Height: 100}
	inside := `{"points":[{"x":100,"y":50,"label":"foreground"}]}`
	if _, err := ctrl.Segment(ctx, item.ID, []byte(inside), stage); err != nil {
		t.Fatalf("segment with display coordinates: %v", err)
	}

	margin := `{"points":[{"x":10,"y":50,"label":"foreground"}]}`
	_, err := ctrl.Segment(ctx, item.ID, []byte(margin), stage)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for letterbox margin point, got %v", err)
	}
}

func TestSegmentWorkerFailureSurfacesStderr(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLabels("radial"))
	store := testsupport.MustOpenStore(t, cfg)

	script := filepath.Join(t.TempDir(), "fail.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"boom\" >&2\nexit 2\n"), 0o755); err != nil {
		t.Fatalf("write failing worker: %v", err)
	}
	command := worker.Command{Binary: "/bin/sh", Script: script}
	workers, err := worker.New(cfg.Paths.ScratchDir, command, command)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	ctrl := pipeline.New(cfg, store, workers)

	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)
	step(ctrl.SkipCrop(ctx, item.ID))

	_, err = ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil)
	if err == nil {
		t.Fatal("expected worker failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool classification, got %v", err)
	}
	if err.Error() != "boom" {
		t.Fatalf("expected the worker's stderr as the message, got %q", err.Error())
	}

	snap, snapErr := ctrl.Snapshot(ctx, item.ID)
	if snapErr != nil {
		t.Fatalf("snapshot: %v", snapErr)
	}
	if snap.HasMask || snap.Stage != queue.StageAnnotate {
		t.Fatalf("expected item unchanged after worker failure, got %+v", snap)
	}
}

func TestNormalizeRendersPairInLockstep(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))

	snap, err := ctrl.Normalize(ctx, item.ID, transform.Options{TargetSize: 224, Rotation: 90})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if snap.Stage != queue.StageGrayscale {
		t.Fatalf("expected grayscale stage, got %s", snap.Stage)
	}
	if snap.Width != 224 || snap.Height != 224 {
		t.Fatalf("expected 224x224 view, got %dx%d", snap.Width, snap.Height)
	}

	maskPNG, err := ctrl.MaskPNG(ctx, item.ID)
	if err != nil {
		t.Fatalf("mask png: %v", err)
	}
	if w, h := decodePNGSize(t, maskPNG); w != 224 || h != 224 {
		t.Fatalf("expected mask rendered to 224x224 in lockstep, got %dx%d", w, h)
	}
}

func TestNormalizeRejectsUnsupportedSize(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))

	_, err := ctrl.Normalize(ctx, item.ID, transform.Options{TargetSize: 123})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBackPreservesDownstreamProducts(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))
	step(ctrl.Normalize(ctx, item.ID, transform.Options{TargetSize: 224}))

	snap, err := ctrl.Back(ctx, item.ID, queue.StageAnnotate)
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if snap.Stage != queue.StageAnnotate {
		t.Fatalf("expected annotate stage, got %s", snap.Stage)
	}
	if !snap.HasMask {
		t.Fatal("expected mask to survive the backward move")
	}
	if snap.State.Normalize == nil {
		t.Fatal("expected normalize record to survive the backward move")
	}

	// The annotate view shows the mask at working resolution, not the
	// normalized render.
	maskPNG, err := ctrl.MaskPNG(ctx, item.ID)
	if err != nil {
		t.Fatalf("mask png: %v", err)
	}
	if w, h := decodePNGSize(t, maskPNG); w != 100 || h != 80 {
		t.Fatalf("expected working-resolution mask on annotate, got %dx%d", w, h)
	}

	if _, err := ctrl.Back(ctx, item.ID, queue.StageReview); !errors.Is(err, services.ErrStageGuard) {
		t.Fatalf("expected stage guard moving forward via back, got %v", err)
	}
}

func TestGrayscaleProducesReviewProduct(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))
	step(ctrl.SkipNormalize(ctx, item.ID))

	_, err := ctrl.Grayscale(ctx, item.ID, "sepia")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown mode, got %v", err)
	}

	snap, err := ctrl.Grayscale(ctx, item.ID, "clahe")
	if err != nil {
		t.Fatalf("grayscale: %v", err)
	}
	if snap.Stage != queue.StageReview {
		t.Fatalf("expected review stage, got %s", snap.Stage)
	}
	if !snap.HasGrayscale || snap.State.GrayscaleMode != "clahe" {
		t.Fatalf("expected grayscale product recorded, got %+v", snap.State)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.GrayscaleFile == "" {
		t.Fatal("expected grayscale file recorded on item")
	}
	if _, err := os.Stat(stored.GrayscaleFile); err != nil {
		t.Fatalf("expected grayscale artifact on disk: %v", err)
	}
}

func TestSkipGrayscaleDiscardsEarlierProduct(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))
	step(ctrl.SkipNormalize(ctx, item.ID))
	step(ctrl.Grayscale(ctx, item.ID, "standard"))
	step(ctrl.Back(ctx, item.ID, queue.StageGrayscale))

	snap, err := ctrl.SkipGrayscale(ctx, item.ID)
	if err != nil {
		t.Fatalf("skip grayscale: %v", err)
	}
	if snap.HasGrayscale || snap.State.GrayscaleMode != "" {
		t.Fatalf("expected grayscale product dropped, got %+v", snap.State)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.GrayscaleFile != "" {
		t.Fatalf("expected grayscale file cleared, got %q", stored.GrayscaleFile)
	}
}

func TestSaveHandsItemToExportLane(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))
	step(ctrl.SkipNormalize(ctx, item.ID))
	step(ctrl.SkipGrayscale(ctx, item.ID))

	if _, err := ctrl.Save(ctx, item.ID, "", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing label, got %v", err)
	}
	if _, err := ctrl.Save(ctx, item.ID, "slick", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown label, got %v", err)
	}

	snap, err := ctrl.Save(ctx, item.ID, "radial", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if snap.Status != queue.StatusExporting {
		t.Fatalf("expected exporting status, got %s", snap.Status)
	}

	stored, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Label != "radial" {
		t.Fatalf("expected label persisted, got %q", stored.Label)
	}
	meta := queue.MetadataFromJSON(stored.MetadataJSON, stored.ImageTitle)
	if meta.LabelValue != "radial" {
		t.Fatalf("expected label in metadata, got %q", meta.LabelValue)
	}
	if meta.DatasetRoot != cfg.Paths.DatasetDir {
		t.Fatalf("expected configured dataset root %q, got %q", cfg.Paths.DatasetDir, meta.DatasetRoot)
	}

	last, err := store.LastDatasetRoot(ctx)
	if err != nil {
		t.Fatalf("last dataset root: %v", err)
	}
	if last != cfg.Paths.DatasetDir {
		t.Fatalf("expected dataset root remembered, got %q", last)
	}

	// The export lane owns the item now; interactive operations refuse.
	if _, err := ctrl.SkipGrayscale(ctx, item.ID); !errors.Is(err, services.ErrStageGuard) {
		t.Fatalf("expected stage guard once exporting, got %v", err)
	}
}

func TestSaveRefusesOffReviewStage(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))

	_, err := ctrl.Save(ctx, item.ID, "radial", "")
	if !errors.Is(err, services.ErrStageGuard) {
		t.Fatalf("expected stage guard error, got %v", err)
	}
}

func TestItemsAreIsolated(t *testing.T) {
	ctrl, store, cfg := newController(t)
	first := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	second := seedEditingItem(t, cfg, store, "Tread B", 120, 90)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.Crop(ctx, first.ID, 10, 10, 60, 60, nil))
	step(ctrl.Segment(ctx, first.ID, []byte(pointPayload), nil))

	snap, err := ctrl.Snapshot(ctx, second.ID)
	if err != nil {
		t.Fatalf("snapshot second: %v", err)
	}
	if snap.Stage != queue.StagePreprocess {
		t.Fatalf("expected second item untouched on preprocess, got %s", snap.Stage)
	}
	if snap.HasMask || !snap.State.IsZero() {
		t.Fatalf("expected second item with empty state, got %+v", snap.State)
	}
	if snap.Width != 120 || snap.Height != 90 {
		t.Fatalf("expected second item's own dimensions, got %dx%d", snap.Width, snap.Height)
	}
}

func TestSessionRestoresAfterRelease(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	step(ctrl.Segment(ctx, item.ID, []byte(pointPayload), nil))
	step(ctrl.Advance(ctx, item.ID))
	step(ctrl.Normalize(ctx, item.ID, transform.Options{TargetSize: 224}))
	step(ctrl.Grayscale(ctx, item.ID, "standard"))

	ctrl.Release(item.ID)

	workers, err := worker.FromConfig(cfg)
	if err != nil {
		t.Fatalf("worker.FromConfig: %v", err)
	}
	revived := pipeline.New(cfg, store, workers)

	snap, err := revived.Snapshot(ctx, item.ID)
	if err != nil {
		t.Fatalf("snapshot after restore: %v", err)
	}
	if snap.Stage != queue.StageReview {
		t.Fatalf("expected review stage after restore, got %s", snap.Stage)
	}
	if !snap.HasMask || !snap.HasGrayscale {
		t.Fatalf("expected products after restore, got %+v", snap)
	}
	if snap.State.GrayscaleMode != "standard" || snap.State.Normalize == nil {
		t.Fatalf("expected recorded operations after restore, got %+v", snap.State)
	}

	// The normalize pair is replayed, not loaded, so the mask must come back
	// at the normalized size.
	maskPNG, err := revived.MaskPNG(ctx, item.ID)
	if err != nil {
		t.Fatalf("mask png after restore: %v", err)
	}
	if w, h := decodePNGSize(t, maskPNG); w != 224 || h != 224 {
		t.Fatalf("expected replayed 224x224 mask, got %dx%d", w, h)
	}
}

func TestViewportTracksCurrentBuffer(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	metrics, err := ctrl.Viewport(ctx, item.ID, viewport.Size{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("viewport: %v", err)
	}
	if metrics.Image.Width != 100 || metrics.Image.Height != 80 {
		t.Fatalf("expected original dimensions, got %+v", metrics.Image)
	}

	step(ctrl.Crop(ctx, item.ID, 10, 10, 60, 60, nil))

	metrics, err = ctrl.Viewport(ctx, item.ID, viewport.Size{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("viewport after crop: %v", err)
	}
	if metrics.Image.Width != 50 || metrics.Image.Height != 50 {
		t.Fatalf("expected cropped dimensions, got %+v", metrics.Image)
	}
}

func TestPreviewFallsBackForSettledItems(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()

	data, mime, err := ctrl.Preview(ctx, item.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if mime != "image/png" {
		t.Fatalf("expected png preview for editing item, got %q", mime)
	}
	if w, h := decodePNGSize(t, data); w != 100 || h != 80 {
		t.Fatalf("expected original view, got %dx%d", w, h)
	}

	item.Status = queue.StatusCompleted
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("update item: %v", err)
	}
	ctrl.Release(item.ID)

	data, _, err = ctrl.Preview(ctx, item.ID)
	if err != nil {
		t.Fatalf("preview settled item: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected artifact bytes for settled item")
	}
}

func TestMaskPNGReportsNotFoundBeforeSegmentation(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()

	_, err := ctrl.MaskPNG(ctx, item.ID)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found before segmentation, got %v", err)
	}
}

func TestOperationsRefuseUnknownItem(t *testing.T) {
	ctrl, _, _ := newController(t)
	ctx := context.Background()

	_, err := ctrl.Snapshot(ctx, 9999)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := ctrl.Advance(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentItemsDoNotInterfere(t *testing.T) {
	ctrl, store, cfg := newController(t)
	ctx := context.Background()

	const n = 4
	items := make([]*queue.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, seedEditingItem(t, cfg, store, fmt.Sprintf("Tread %d", i), 100, 80))
	}

	errs := make(chan error, n)
	for _, it := range items {
		go func(id int64) {
			if _, err := ctrl.SkipCrop(ctx, id); err != nil {
				errs <- err
				return
			}
			if _, err := ctrl.Segment(ctx, id, []byte(pointPayload), nil); err != nil {
				errs <- err
				return
			}
			_, err := ctrl.Advance(ctx, id)
			errs <- err
		}(it.ID)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent pipeline run: %v", err)
		}
	}

	for _, it := range items {
		snap, err := ctrl.Snapshot(ctx, it.ID)
		if err != nil {
			t.Fatalf("snapshot %d: %v", it.ID, err)
		}
		if snap.Stage != queue.StageNormalize || !snap.HasMask {
			t.Fatalf("item %d in unexpected state: %+v", it.ID, snap)
		}
	}
}

func TestGuardMessageReadsCleanly(t *testing.T) {
	ctrl, store, cfg := newController(t)
	item := seedEditingItem(t, cfg, store, "Tread A", 100, 80)
	ctx := context.Background()
	step := stepper(t)

	step(ctrl.SkipCrop(ctx, item.ID))
	_, err := ctrl.Advance(ctx, item.ID)
	if err == nil {
		t.Fatal("expected guard error")
	}
	details := services.Details(err)
	if strings.Contains(details.Message, "stage guard:") {
		t.Fatalf("expected marker prefix stripped, got %q", details.Message)
	}
	if !strings.Contains(details.Message, "segment the image") {
		t.Fatalf("expected operator guidance in message, got %q", details.Message)
	}
}
