package queue

import "strings"

// Stage identifies the interactive pipeline stage an editing item is on.
// The order here is the forward order of the pipeline.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageAnnotate   Stage = "annotate"
	StageNormalize  Stage = "normalize"
	StageGrayscale  Stage = "grayscale"
	StageReview     Stage = "review"
)

var stageOrder = []Stage{
	StagePreprocess,
	StageAnnotate,
	StageNormalize,
	StageGrayscale,
	StageReview,
}

// AllStages returns the pipeline stages in forward order.
func AllStages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, stage := range stageOrder {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// StageIndex returns the position of a stage in the forward order, or -1 for
// an unknown stage.
func StageIndex(stage Stage) int {
	for i, known := range stageOrder {
		if known == stage {
			return i
		}
	}
	return -1
}

// NextStage returns the stage after the given one. The final stage has no
// successor and returns false.
func NextStage(stage Stage) (Stage, bool) {
	idx := StageIndex(stage)
	if idx < 0 || idx+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[idx+1], true
}

// StageBefore reports whether a comes strictly before b in the forward order.
func StageBefore(a, b Stage) bool {
	ia, ib := StageIndex(a), StageIndex(b)
	return ia >= 0 && ib >= 0 && ia < ib
}
