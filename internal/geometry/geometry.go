package geometry

import (
	"image"
	"strings"
)

// Label marks a prompt point as foreground or background seed.
type Label int

const (
	LabelBackground Label = 0
	LabelForeground Label = 1
)

func (l Label) String() string {
	if l == LabelForeground {
		return "foreground"
	}
	return "background"
}

// Mode identifies which prompt shape a request carries.
type Mode string

const (
	ModePoints   Mode = "points"
	ModeBoundary Mode = "boundary"
)

// Algorithm selects the segmentation backend handed to the worker.
type Algorithm string

const (
	AlgorithmSAM  Algorithm = "sam"
	AlgorithmSAM2 Algorithm = "sam2"
)

// ModelSize selects the checkpoint size handed to the worker.
type ModelSize string

const (
	ModelTiny  ModelSize = "tiny"
	ModelSmall ModelSize = "small"
	ModelBase  ModelSize = "base"
	ModelLarge ModelSize = "large"
)

// ParseAlgorithm validates an algorithm name. Empty input is allowed so the
// caller can substitute a configured default.
func ParseAlgorithm(value string) (Algorithm, bool) {
	switch Algorithm(strings.TrimSpace(strings.ToLower(value))) {
	case "":
		return "", true
	case AlgorithmSAM:
		return AlgorithmSAM, true
	case AlgorithmSAM2:
		return AlgorithmSAM2, true
	default:
		return "", false
	}
}

// ParseModelSize validates a model size name. Empty input is allowed so the
// caller can substitute a configured default.
func ParseModelSize(value string) (ModelSize, bool) {
	switch ModelSize(strings.TrimSpace(strings.ToLower(value))) {
	case "":
		return "", true
	case ModelTiny:
		return ModelTiny, true
	case ModelSmall:
		return ModelSmall, true
	case ModelBase:
		return ModelBase, true
	case ModelLarge:
		return ModelLarge, true
	default:
		return "", false
	}
}

// Point is a canonical prompt point in image pixel space.
type Point struct {
	X     int
	Y     int
	Label Label
}

// Request is the canonical form of a validated segmentation prompt. Exactly
// one of Points or Boundary is populated, matching Mode.
type Request struct {
	Mode      Mode
	Points    []Point
	Boundary  []image.Point
	Algorithm Algorithm
	ModelSize ModelSize
}

// Triples returns the points as [x, y, label] triples.
func (r *Request) Triples() [][3]int {
	out := make([][3]int, len(r.Points))
	for i, p := range r.Points {
		out[i] = [3]int{p.X, p.Y, int(p.Label)}
	}
	return out
}

// PointPairs returns the point coordinates as [x, y] pairs in prompt order.
func (r *Request) PointPairs() [][2]int {
	out := make([][2]int, len(r.Points))
	for i, p := range r.Points {
		out[i] = [2]int{p.X, p.Y}
	}
	return out
}

// LabelValues returns the per-point labels as 0/1 integers in prompt order.
func (r *Request) LabelValues() []int {
	out := make([]int, len(r.Points))
	for i, p := range r.Points {
		out[i] = int(p.Label)
	}
	return out
}

// FlatBoundary returns the boundary vertices as a flat ordered coordinate
// list [x0, y0, x1, y1, ...]. Vertex order is preserved as supplied.
func (r *Request) FlatBoundary() []int {
	out := make([]int, 0, len(r.Boundary)*2)
	for _, v := range r.Boundary {
		out = append(out, v.X, v.Y)
	}
	return out
}

// BBox returns the boundary's axis-aligned bounding box as
// [minX, minY, maxX, maxY]. The second return is false when the request has
// no boundary.
func (r *Request) BBox() ([4]int, bool) {
	if len(r.Boundary) == 0 {
		return [4]int{}, false
	}
	minX, minY := r.Boundary[0].X, r.Boundary[0].Y
	maxX, maxY := minX, minY
	for _, v := range r.Boundary[1:] {
		if v.X < minX {
			minX = v.X
		}
		if v.Y < minY {
			minY = v.Y
		}
		if v.X > maxX {
			maxX = v.X
		}
		if v.Y > maxY {
			maxY = v.Y
		}
	}
	return [4]int{minX, minY, maxX, maxY}, true
}

// PromptType is the worker-facing prompt flavor: point prompts for point
// mode, a bounding box derived from the boundary otherwise.
func (r *Request) PromptType() string {
	if r.Mode == ModeBoundary {
		return "box"
	}
	return "point"
}

// ForegroundCount reports how many points carry the foreground label.
func (r *Request) ForegroundCount() int {
	n := 0
	for _, p := range r.Points {
		if p.Label == LabelForeground {
			n++
		}
	}
	return n
}
