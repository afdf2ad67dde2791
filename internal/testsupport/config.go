package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"treadmark/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.DatasetDir = filepath.Join(base, "dataset")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "staging", "scratch")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLabels overrides the closed label set on the test config.
func WithLabels(labels ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Labels = labels
	}
}

// stubWorkerScript copies the --image argument to the --output argument,
// which is enough to exercise the invocation contract end to end.
const stubWorkerScript = `#!/bin/sh
in=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --image) in="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cp "$in" "$out"
`

// WithStubWorkers writes shell stand-ins for the segmentation and grayscale
// workers so tests can run full invocations without Python installed. The
// stubs echo the input image back as the output artifact.
func WithStubWorkers() ConfigOption {
	return func(b *configBuilder) {
		workerDir := filepath.Join(b.baseDir, "workers")
		if err := os.MkdirAll(workerDir, 0o755); err != nil {
			b.t.Fatalf("mkdir worker dir: %v", err)
		}
		segmentation := filepath.Join(workerDir, "segment.sh")
		grayscale := filepath.Join(workerDir, "preprocess.sh")
		for _, path := range []string{segmentation, grayscale} {
			if err := os.WriteFile(path, []byte(stubWorkerScript), 0o755); err != nil {
				b.t.Fatalf("write stub worker %s: %v", path, err)
			}
		}
		b.cfg.Workers.PythonBinary = "/bin/sh"
		b.cfg.Workers.SegmentationScript = segmentation
		b.cfg.Workers.GrayscaleScript = grayscale
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
