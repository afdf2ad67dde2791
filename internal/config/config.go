package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	DatasetDir string `toml:"dataset_dir"`
	LogDir     string `toml:"log_dir"`
	ScratchDir string `toml:"scratch_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Workers contains configuration for the external Python workers that run
// segmentation and grayscale conversion.
type Workers struct {
	PythonBinary        string `toml:"python_binary"`
	SegmentationScript  string `toml:"segmentation_script"`
	GrayscaleScript     string `toml:"grayscale_script"`
	SegmentationTimeout int    `toml:"segmentation_timeout"`
	GrayscaleTimeout    int    `toml:"grayscale_timeout"`
}

// Pipeline contains annotation pipeline defaults and limits.
type Pipeline struct {
	DefaultAlgorithm     string   `toml:"default_algorithm"`
	DefaultModelSize     string   `toml:"default_model_size"`
	DefaultGrayscaleMode string   `toml:"default_grayscale_mode"`
	StageWidth           int      `toml:"stage_width"`
	StageHeight          int      `toml:"stage_height"`
	SquareSize           int      `toml:"square_size"`
	MaxImageMB           int      `toml:"max_image_mb"`
	Labels               []string `toml:"labels"`
}

// HasLabel reports whether label belongs to the configured closed label set.
func (p Pipeline) HasLabel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, known := range p.Labels {
		if known == label {
			return true
		}
	}
	return false
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Ingest             bool   `toml:"ingest"`
	Segmentation       bool   `toml:"segmentation"`
	Export             bool   `toml:"export"`
	Review             bool   `toml:"review"`
	Queue              bool   `toml:"queue"`
	Errors             bool   `toml:"errors"`
	QueueMinItems      int    `toml:"queue_min_items"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for treadmark.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, and API token
//   - Workers: external segmentation/grayscale worker commands and timeouts
//   - Pipeline: annotation defaults (algorithm, model size, grayscale mode),
//     display stage dimensions, square transform size, upload limits
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals and heartbeat timing
//   - Logging: log format, level, retention, and per-stage level overrides
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workers       Workers       `toml:"workers"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/treadmark/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A .env file in the
// working directory is loaded first so secret fallbacks can come from it.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("treadmark.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// DatasetDir is created on a best-effort basis so the daemon can run when
// the export target is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.DatasetDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.DatasetDir, 0o755)
	}
	return nil
}

// ItemsDir returns the root directory holding per-item staged artifacts.
func (c *Config) ItemsDir() string {
	return filepath.Join(c.Paths.StagingDir, "items")
}

// ItemDir returns the staged artifact directory for one queue item.
func (c *Config) ItemDir(id int64) string {
	return filepath.Join(c.ItemsDir(), strconv.FormatInt(id, 10))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
