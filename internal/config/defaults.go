package config

const (
	defaultStagingDir = "~/.local/share/treadmark/staging"
	defaultDatasetDir = "~/datasets/treadmark"
	defaultLogDir     = "~/.local/share/treadmark/logs"
	defaultAPIBind    = "127.0.0.1:7718"

	defaultPythonBinary        = "python3"
	defaultSegmentationScript  = "~/.local/share/treadmark/workers/segment.py"
	defaultGrayscaleScript     = "~/.local/share/treadmark/workers/preprocess.py"
	defaultSegmentationTimeout = 300
	defaultGrayscaleTimeout    = 120

	defaultAlgorithm     = "sam"
	defaultModelSize     = "base"
	defaultGrayscaleMode = "standard"
	defaultStageWidth    = 800
	defaultStageHeight   = 600
	defaultSquareSize    = 320
	defaultMaxImageMB    = 32

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultNotifyRequestTimeout     = 10
	defaultNotifyQueueMinItems      = 2
	defaultNotifyDedupWindowSeconds = 600
)

func defaultLabels() []string {
	return []string{"good", "defective"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			DatasetDir: defaultDatasetDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workers: Workers{
			PythonBinary:        defaultPythonBinary,
			SegmentationScript:  defaultSegmentationScript,
			GrayscaleScript:     defaultGrayscaleScript,
			SegmentationTimeout: defaultSegmentationTimeout,
			GrayscaleTimeout:    defaultGrayscaleTimeout,
		},
		Pipeline: Pipeline{
			DefaultAlgorithm:     defaultAlgorithm,
			DefaultModelSize:     defaultModelSize,
			DefaultGrayscaleMode: defaultGrayscaleMode,
			StageWidth:           defaultStageWidth,
			StageHeight:          defaultStageHeight,
			SquareSize:           defaultSquareSize,
			MaxImageMB:           defaultMaxImageMB,
			Labels:               defaultLabels(),
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Ingest:             true,
			Segmentation:       true,
			Export:             true,
			Review:             true,
			Queue:              true,
			Errors:             true,
			QueueMinItems:      defaultNotifyQueueMinItems,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
