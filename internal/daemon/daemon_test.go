package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"treadmark/internal/daemon"
	"treadmark/internal/logging"
	"treadmark/internal/queue"
	"treadmark/internal/stage"
	"treadmark/internal/testsupport"
	"treadmark/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Item) error { return nil }
func (noopStage) Execute(context.Context, *queue.Item) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Ingester: noopStage{}, Organizer: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr, nil, "", nil, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonAddImage(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "rear-left.png")
	testsupport.WritePNG(t, source, 64, 48)

	item, duplicate, err := d.AddImage(ctx, source, "")
	if err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if duplicate {
		t.Fatal("first enqueue should not be a duplicate")
	}
	if item.ImageTitle != "rear-left" {
		t.Fatalf("unexpected inferred title %q", item.ImageTitle)
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("unexpected status %q", item.Status)
	}
	if item.ImageSHA256 == "" {
		t.Fatal("expected a fingerprint on the enqueued item")
	}

	again, duplicate, err := d.AddImage(ctx, source, "rear-left")
	if err != nil {
		t.Fatalf("AddImage duplicate: %v", err)
	}
	if !duplicate {
		t.Fatal("re-adding an in-workflow image should report duplicate")
	}
	if again.ID != item.ID {
		t.Fatalf("duplicate add returned item %d, want %d", again.ID, item.ID)
	}
}

func TestDaemonAddImageRejectsUnknownExtension(t *testing.T) {
	d, _ := newTestDaemon(t)

	source := filepath.Join(t.TempDir(), "notes.txt")
	testsupport.WriteFile(t, source, 16)

	if _, _, err := d.AddImage(context.Background(), source, ""); err == nil {
		t.Fatal("expected unsupported extension error")
	}
}

func TestDaemonStopQueueItems(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "Sidewall", "fp-stop")

	updated, err := d.StopQueueItems(ctx, []int64{item.ID})
	if err != nil {
		t.Fatalf("StopQueueItems: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 stopped item, got %d", updated)
	}

	stopped, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stopped.Status != queue.StatusNeedsReview {
		t.Fatalf("unexpected status %q", stopped.Status)
	}
	if !stopped.NeedsReview || stopped.ReviewReason != queue.UserStopReason {
		t.Fatalf("expected user stop review reason, got %q", stopped.ReviewReason)
	}
}

func TestDaemonRetryFailed(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "Tread Close-Up", "fp-retry")
	item.Status = queue.StatusFailed
	item.ErrorMessage = "segmentation worker exited"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated, err := d.RetryFailed(ctx, nil)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 retried item, got %d", updated)
	}

	retried, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if retried.Status != queue.StatusPending {
		t.Fatalf("unexpected status %q", retried.Status)
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	d, _ := newTestDaemon(t)

	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Fatal("expected no notification without a configured topic")
	}
	if detail == "" {
		t.Fatal("expected a human-readable detail message")
	}
}
