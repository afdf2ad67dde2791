package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorkers(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.DatasetDir, err = expandPath(c.Paths.DatasetDir); err != nil {
		return fmt.Errorf("paths.dataset_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = filepath.Join(c.Paths.StagingDir, "scratch")
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := os.LookupEnv("TREADMARK_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizeWorkers() error {
	var err error
	c.Workers.PythonBinary = strings.TrimSpace(c.Workers.PythonBinary)
	if c.Workers.PythonBinary == "" {
		c.Workers.PythonBinary = defaultPythonBinary
	}
	c.Workers.SegmentationScript = strings.TrimSpace(c.Workers.SegmentationScript)
	if c.Workers.SegmentationScript != "" {
		if c.Workers.SegmentationScript, err = expandPath(c.Workers.SegmentationScript); err != nil {
			return fmt.Errorf("workers.segmentation_script: %w", err)
		}
	}
	c.Workers.GrayscaleScript = strings.TrimSpace(c.Workers.GrayscaleScript)
	if c.Workers.GrayscaleScript != "" {
		if c.Workers.GrayscaleScript, err = expandPath(c.Workers.GrayscaleScript); err != nil {
			return fmt.Errorf("workers.grayscale_script: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.DefaultAlgorithm = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultAlgorithm))
	if c.Pipeline.DefaultAlgorithm == "" {
		c.Pipeline.DefaultAlgorithm = defaultAlgorithm
	}
	c.Pipeline.DefaultModelSize = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultModelSize))
	if c.Pipeline.DefaultModelSize == "" {
		c.Pipeline.DefaultModelSize = defaultModelSize
	}
	mode := strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultGrayscaleMode))
	// Fold the long client-side spellings onto the worker vocabulary.
	switch mode {
	case "":
		mode = defaultGrayscaleMode
	case "adaptivethreshold":
		mode = "adaptive"
	case "gaussianblur":
		mode = "gaussian"
	}
	c.Pipeline.DefaultGrayscaleMode = mode

	seen := make(map[string]struct{}, len(c.Pipeline.Labels))
	labels := make([]string, 0, len(c.Pipeline.Labels))
	for _, label := range c.Pipeline.Labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		labels = defaultLabels()
	}
	c.Pipeline.Labels = labels
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if value, ok := os.LookupEnv("TREADMARK_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
