package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"treadmark/internal/config"
	"treadmark/internal/logging"
	"treadmark/internal/services"
	"treadmark/internal/transform"
)

// Kind identifies which external worker an invocation targets.
type Kind string

const (
	KindSegmentation Kind = "segmentation"
	KindGrayscale    Kind = "grayscale"
)

// Command describes how one worker kind is launched. Binary is the
// executable (typically a Python interpreter or a self-contained tool);
// Script, when set, is passed as the first argument. A zero Timeout disables
// the deadline.
type Command struct {
	Binary  string
	Script  string
	Timeout time.Duration
}

func (c Command) argv(flags []string) (string, []string) {
	if strings.TrimSpace(c.Script) != "" {
		return c.Binary, append([]string{c.Script}, flags...)
	}
	return c.Binary, flags
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRunner injects a custom process runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithLogger attaches a logger for scratch cleanup diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator runs one short-lived external process per request with strict
// scratch-directory hygiene. Invocations are independent: each gets its own
// uniquely named scratch directory, so concurrent calls never interfere and
// no locking is needed.
type Orchestrator struct {
	scratchRoot  string
	segmentation Command
	grayscale    Command
	runner       Runner
	logger       *slog.Logger
}

// New constructs an orchestrator rooted at scratchRoot.
func New(scratchRoot string, segmentation, grayscale Command, opts ...Option) (*Orchestrator, error) {
	scratchRoot = strings.TrimSpace(scratchRoot)
	if scratchRoot == "" {
		return nil, errors.New("scratch root required")
	}
	o := &Orchestrator{
		scratchRoot:  scratchRoot,
		segmentation: segmentation,
		grayscale:    grayscale,
		runner:       commandRunner{},
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// FromConfig builds an orchestrator from the workers section of the config.
func FromConfig(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	segmentation := Command{
		Binary:  cfg.Workers.PythonBinary,
		Script:  cfg.Workers.SegmentationScript,
		Timeout: time.Duration(cfg.Workers.SegmentationTimeout) * time.Second,
	}
	grayscale := Command{
		Binary:  cfg.Workers.PythonBinary,
		Script:  cfg.Workers.GrayscaleScript,
		Timeout: time.Duration(cfg.Workers.GrayscaleTimeout) * time.Second,
	}
	return New(cfg.Paths.ScratchDir, segmentation, grayscale, opts...)
}

// Invoke stages input into a fresh scratch directory, spawns the worker with
// the canonical argument contract, and returns the bytes of the output file
// the worker produced. The scratch directory is released on every exit path,
// including validation failures after staging, process failure, and
// cancellation. No retries happen here; a failed invocation is surfaced
// verbatim to the caller.
func (o *Orchestrator) Invoke(ctx context.Context, kind Kind, input []byte, params Params) ([]byte, error) {
	command, err := o.command(kind)
	if err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, services.Wrap(services.ErrValidation, "worker", string(kind), "no input image bytes", nil)
	}
	flags, err := params.flags(kind)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(o.scratchRoot, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "worker", string(kind), "create scratch root", err)
	}
	scratchDir := filepath.Join(o.scratchRoot, uuid.NewString())
	if err := os.Mkdir(scratchDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "worker", string(kind), "create scratch directory", err)
	}
	defer o.release(scratchDir)

	inputPath := filepath.Join(scratchDir, fmt.Sprintf("input-%s.%s", uuid.NewString(), transform.ExtensionForMIME(params.MIMEType)))
	outputPath := filepath.Join(scratchDir, fmt.Sprintf("output-%s.png", uuid.NewString()))
	if err := os.WriteFile(inputPath, input, 0o644); err != nil {
		return nil, services.Wrap(services.ErrResource, "worker", string(kind), "stage input file", err)
	}

	runCtx := ctx
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	binary, argv := command.argv(append([]string{"--image", inputPath, "--output", outputPath}, flags...))
	stderr, runErr := o.runner.Run(runCtx, binary, argv)
	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, services.Wrap(services.ErrTimeout, "worker", string(kind), "worker did not finish in time", runCtx.Err())
		case runCtx.Err() != nil:
			return nil, services.Wrap(services.ErrTransient, "worker", string(kind), "worker invocation canceled", runCtx.Err())
		}
		return nil, newExecutionError(kind, stderr, runErr)
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "worker", string(kind), "worker reported success but produced no readable output", err)
	}
	return output, nil
}

func (o *Orchestrator) command(kind Kind) (Command, error) {
	var command Command
	switch kind {
	case KindSegmentation:
		command = o.segmentation
	case KindGrayscale:
		command = o.grayscale
	default:
		return Command{}, services.Wrap(services.ErrValidation, "worker", "invoke", fmt.Sprintf("unknown worker kind %q", kind), nil)
	}
	if strings.TrimSpace(command.Binary) == "" {
		return Command{}, services.Wrap(services.ErrConfiguration, "worker", string(kind), "worker binary is not configured", nil)
	}
	return command, nil
}

// release removes the scratch directory recursively. Failures are logged and
// swallowed so cleanup never masks the primary error.
func (o *Orchestrator) release(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn("scratch directory cleanup failed",
			logging.String("scratch_dir", dir),
			logging.Error(err))
	}
}
