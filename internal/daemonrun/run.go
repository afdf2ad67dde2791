package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"treadmark/internal/config"
	"treadmark/internal/daemon"
	"treadmark/internal/ingest"
	"treadmark/internal/ipc"
	"treadmark/internal/logging"
	"treadmark/internal/notifications"
	"treadmark/internal/organizer"
	"treadmark/internal/pipeline"
	"treadmark/internal/queue"
	"treadmark/internal/staging"
	"treadmark/internal/worker"
	"treadmark/internal/workflow"
)

// scratchMaxAge bounds how long abandoned worker scratch dirs survive a restart.
const scratchMaxAge = 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the treadmark daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("treadmark-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("treadmark-%s.events", runID))
	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
	}

	var sessionID string
	var debugLogPath string
	if opts.Diagnostic {
		sessionID = uuid.NewString()
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("treadmark-%s.log", runID))
	}

	loggerOpts := logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
		SessionID:        sessionID,
	}
	logger, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugLogger, debugErr := logging.New(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
			SessionID:        sessionID,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			if err := ensureCurrentLogPointer(filepath.Join(cfg.Paths.LogDir, "debug"), debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/treadmark.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update treadmark.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "treadmark-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "treadmark-*.events", Exclude: []string{eventsPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "*.log"},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "treadmark.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	cleanWorkArtifacts(signalCtx, cfg, store, logger)

	notifier := notifications.NewService(cfg)
	workflowManager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	registerStages(workflowManager, cfg, store, logger, notifier)

	workers, err := worker.FromConfig(cfg, worker.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("configure workers: %w", err)
	}
	editor := pipeline.New(cfg, store, workers,
		pipeline.WithLogger(logger),
		pipeline.WithNotifier(notifier))

	d, err := daemon.New(cfg, store, logger, workflowManager, editor, logPath, logHub, eventArchive, notifier)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "treadmark.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon may not process queue items"),
		)
	}

	<-signalCtx.Done()
	logger.Info("treadmark daemon shutting down")
	return nil
}

func registerStages(mgr *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) {
	if mgr == nil || cfg == nil {
		return
	}

	mgr.ConfigureStages(workflow.StageSet{
		Ingester:  ingest.NewIngesterWithDependencies(cfg, store, logger, notifier),
		Organizer: organizer.NewOrganizerWithDependencies(cfg, store, logger, notifier),
	})
}

// cleanWorkArtifacts sweeps abandoned scratch dirs and item dirs whose queue
// rows no longer exist. Runs before the workflow starts so reclaimed items
// never race the sweep.
func cleanWorkArtifacts(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) {
	stale := staging.CleanStale(ctx, cfg.Paths.ScratchDir, scratchMaxAge, logger)
	if len(stale.Removed) > 0 || len(stale.Errors) > 0 {
		logger.Info("scratch sweep finished",
			logging.String(logging.FieldEventType, "scratch_sweep"),
			logging.Int("removed_count", len(stale.Removed)),
			logging.Int("error_count", len(stale.Errors)))
	}

	active, err := store.ActiveItemIDs(ctx)
	if err != nil {
		logger.Warn("orphan sweep skipped", logging.Error(err))
		return
	}
	orphaned := staging.CleanOrphaned(ctx, cfg.ItemsDir(), active, logger)
	if len(orphaned.Removed) > 0 || len(orphaned.Errors) > 0 {
		logger.Info("orphan sweep finished",
			logging.String(logging.FieldEventType, "orphan_sweep"),
			logging.Int("removed_count", len(orphaned.Removed)),
			logging.Int("error_count", len(orphaned.Errors)))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "treadmark.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	python := cfg.Workers.PythonBinary
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("python_available", binaryAvailable(python)),
		logging.String("python_binary", python),
		logging.Bool("segmentation_script_present", scriptPresent(cfg.Workers.SegmentationScript)),
		logging.String("segmentation_script", cfg.Workers.SegmentationScript),
		logging.Bool("grayscale_script_present", scriptPresent(cfg.Workers.GrayscaleScript)),
		logging.String("grayscale_script", cfg.Workers.GrayscaleScript),
		logging.Bool("ntfy_topic_present", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func scriptPresent(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
