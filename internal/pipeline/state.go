package pipeline

import (
	"encoding/json"
	"image"
	"strings"
	"time"
)

// State captures which forward operations ran on a session and with what
// options, in a transport-friendly form stored on the queue item. Pixel
// products live beside it in the item's staging directory; deterministic
// products (the normalize pass) are replayed from State on restore instead of
// being persisted.
type State struct {
	CropApplied   bool          `json:"cropApplied,omitempty"`
	CropRect      *Rect         `json:"cropRect,omitempty"`
	Segmentation  *SegmentRun   `json:"segmentation,omitempty"`
	Normalize     *NormalizeRun `json:"normalize,omitempty"`
	GrayscaleMode string        `json:"grayscaleMode,omitempty"`
	Finalized     bool          `json:"finalized,omitempty"`
}

// Rect is a serializable pixel rectangle in the source buffer's space.
type Rect struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// NewRect converts an image.Rectangle.
func NewRect(r image.Rectangle) *Rect {
	r = r.Canon()
	return &Rect{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y}
}

// Rectangle converts back to an image.Rectangle.
func (r *Rect) Rectangle() image.Rectangle {
	if r == nil {
		return image.Rectangle{}
	}
	return image.Rect(r.X0, r.Y0, r.X1, r.Y1)
}

// SegmentRun echoes the metadata of the last successful segmentation.
type SegmentRun struct {
	Algorithm        string    `json:"algorithm"`
	ModelSize        string    `json:"modelSize"`
	PromptType       string    `json:"promptType"`
	ForegroundPoints int       `json:"foregroundPoints,omitempty"`
	BackgroundPoints int       `json:"backgroundPoints,omitempty"`
	BoundaryPoints   int       `json:"boundaryPoints,omitempty"`
	CompletedAt      time.Time `json:"completedAt"`
}

// NormalizeRun records the options of an applied normalize pass.
type NormalizeRun struct {
	TargetSize     int  `json:"targetSize"`
	Rotation       int  `json:"rotation,omitempty"`
	FlipHorizontal bool `json:"flipHorizontal,omitempty"`
	FlipVertical   bool `json:"flipVertical,omitempty"`
}

// IsZero reports whether the state records no operations.
func (s State) IsZero() bool {
	return !s.CropApplied &&
		s.CropRect == nil &&
		s.Segmentation == nil &&
		s.Normalize == nil &&
		strings.TrimSpace(s.GrayscaleMode) == "" &&
		!s.Finalized
}

// Marshal converts the state into its JSON string form.
func (s State) Marshal() (string, error) {
	if s.IsZero() {
		return "", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Unmarshal parses a state from a JSON string. Empty input yields an empty state.
func Unmarshal(raw string) (State, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return State{}, nil
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, err
	}
	return state, nil
}
