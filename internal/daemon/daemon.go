package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"treadmark/internal/config"
	"treadmark/internal/logging"
	"treadmark/internal/notifications"
	"treadmark/internal/pipeline"
	"treadmark/internal/queue"
	"treadmark/internal/workflow"
)

// uploadExtensions are the image types accepted for manual enqueue.
var uploadExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Daemon coordinates the background processing services and enforces
// single-instance execution via a file lock in the log directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	editor   *pipeline.Controller
	notifier notifications.Service

	logPath string
	logHub  *logging.StreamHub
	archive *logging.EventArchive

	lockPath string
	lock     *flock.Flock
	apiSrv   *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []DependencyStatus
}

// DependencyStatus reports availability of one external dependency.
type DependencyStatus struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	store *queue.Store,
	logger *slog.Logger,
	wf *workflow.Manager,
	editor *pipeline.Controller,
	logPath string,
	logHub *logging.StreamHub,
	archive *logging.EventArchive,
	notifier notifications.Service,
) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "treadmarkd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		editor:   editor,
		notifier: notifier,
		logPath:  logPath,
		logHub:   logHub,
		archive:  archive,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = apiSrv
	return d, nil
}

// Start launches the workflow manager and acquires the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another treadmark daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.apiSrv != nil {
		if err := d.apiSrv.start(d.ctx); err != nil {
			d.workflow.Stop()
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return fmt.Errorf("start api server: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("treadmark daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"))
	if err := d.notifier.Publish(d.ctx, notifications.EventDaemonStarted, nil); err != nil {
		d.logger.Debug("daemon start notification failed", logging.Error(err))
	}
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if d.apiSrv != nil {
		d.apiSrv.stop()
	}
	if d.editor != nil {
		d.editor.ReleaseAll()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("treadmark daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"))
	if err := d.notifier.Publish(context.Background(), notifications.EventDaemonStopped, nil); err != nil {
		d.logger.Debug("daemon stop notification failed", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.archive != nil {
		_ = d.archive.Close()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Pipeline exposes the interactive annotation controller.
func (d *Daemon) Pipeline() *pipeline.Controller {
	return d.editor
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetQueueItem returns a single queue item by id.
func (d *Daemon) GetQueueItem(ctx context.Context, id int64) (*queue.Item, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	if d.editor != nil {
		d.editor.ReleaseAll()
	}
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// RemoveQueueItems removes specific items by id.
func (d *Daemon) RemoveQueueItems(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			if d.editor != nil {
				d.editor.Release(id)
			}
			removed++
		}
	}
	return removed, nil
}

// ResetStuck transitions in-flight items back to the start of their stage.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// StopQueueItems parks the given in-workflow items in review with the user
// stop reason. Editing sessions held for those items are released.
func (d *Daemon) StopQueueItems(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	updated, err := d.store.StopItems(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if d.editor != nil {
		for _, id := range ids {
			d.editor.Release(id)
		}
	}
	if updated > 0 {
		d.logger.Info("queue items stopped by user",
			logging.String(logging.FieldEventType, "queue_items_stopped"),
			logging.Int64("updated_count", updated))
	}
	return updated, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	if d.store == nil {
		return queue.HealthSummary{}, errors.New("queue store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	if d.store == nil {
		return queue.DatabaseHealth{}, errors.New("queue store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification publishes a test event using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// AddImage enqueues an uploaded image for annotation. Re-uploading an image
// whose previous item is still in the workflow returns that item instead of
// creating a duplicate.
func (d *Daemon) AddImage(ctx context.Context, sourcePath, title string) (*queue.Item, bool, error) {
	if d.store == nil {
		return nil, false, errors.New("queue store unavailable")
	}
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, false, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat source image: %w", err)
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	mimeType, ok := uploadExtensions[ext]
	if !ok {
		return nil, false, fmt.Errorf("unsupported image extension %q (use .png, .jpg or .jpeg)", ext)
	}
	if limit := d.cfg.Pipeline.MaxImageMB; limit > 0 && info.Size() > int64(limit)<<20 {
		return nil, false, fmt.Errorf("image exceeds the configured %d MB limit", limit)
	}

	fingerprint, err := fileSHA256(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint image: %w", err)
	}
	if existing, err := d.store.FindByFingerprint(ctx, fingerprint); err != nil {
		return nil, false, err
	} else if existing != nil && existing.IsInWorkflow() {
		return existing, true, nil
	}

	if strings.TrimSpace(title) == "" {
		title = queue.InferTitleFromPath(absPath)
	}
	item, err := d.store.NewItem(ctx, absPath, title, mimeType, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue image: %w", err)
	}
	d.logger.Info("image queued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("source", absPath),
		logging.String("image_title", title),
		logging.String(logging.FieldEventType, "image_queued"))
	return item, false, nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log event hub, if configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogArchive returns the on-disk log event archive, if configured.
func (d *Daemon) LogArchive() *logging.EventArchive {
	return d.archive
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     summary,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: d.dependencies(ctx),
	}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
