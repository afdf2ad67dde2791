package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.DatasetDir == "" {
		return errors.New("paths.dataset_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.PythonBinary == "" {
		return errors.New("workers.python_binary must be set")
	}
	return ensurePositiveMap(map[string]int{
		"workers.segmentation_timeout": c.Workers.SegmentationTimeout,
		"workers.grayscale_timeout":    c.Workers.GrayscaleTimeout,
	})
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.DefaultAlgorithm {
	case "sam", "sam2":
	default:
		return fmt.Errorf("pipeline.default_algorithm must be sam or sam2, got %q", c.Pipeline.DefaultAlgorithm)
	}
	switch c.Pipeline.DefaultModelSize {
	case "tiny", "small", "base", "large":
	default:
		return fmt.Errorf("pipeline.default_model_size must be one of tiny, small, base, large, got %q", c.Pipeline.DefaultModelSize)
	}
	switch c.Pipeline.DefaultGrayscaleMode {
	case "standard", "clahe", "adaptive", "gaussian":
	default:
		return fmt.Errorf("pipeline.default_grayscale_mode must be one of standard, clahe, adaptive, gaussian, got %q", c.Pipeline.DefaultGrayscaleMode)
	}
	if c.Pipeline.StageWidth <= 0 || c.Pipeline.StageHeight <= 0 {
		return errors.New("pipeline.stage_width and pipeline.stage_height must be positive")
	}
	switch c.Pipeline.SquareSize {
	case 224, 320:
	default:
		return fmt.Errorf("pipeline.square_size must be 224 or 320, got %d", c.Pipeline.SquareSize)
	}
	if c.Pipeline.MaxImageMB <= 0 {
		return errors.New("pipeline.max_image_mb must be positive")
	}
	if len(c.Pipeline.Labels) == 0 {
		return errors.New("pipeline.labels must name at least one label")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.QueueMinItems < 1 {
		return errors.New("notifications.queue_min_items must be >= 1")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
