package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"treadmark/internal/services"
	"treadmark/internal/viewport"
)

var (
	// ErrMissingPrompt reports a payload with neither points nor boundary,
	// distinguishing "user forgot to annotate" from structural garbage.
	ErrMissingPrompt = errors.New("no prompt supplied")
	// ErrMalformedPayload reports a payload whose structure could not be
	// parsed at all.
	ErrMalformedPayload = errors.New("malformed prompt payload")
)

// Validator parses untrusted prompt payloads into canonical requests. Width
// and Height bound the accepted coordinate range when non-zero; a zero value
// disables the bounds check for that axis. When Display is set the payload
// coordinates are stage-local display values and are mapped through the
// viewport metrics before the bounds check, keeping float precision until the
// single forward rounding. DefaultAlgorithm and DefaultModelSize fill fields
// the payload omits; when left zero an omitted field is a validation failure.
type Validator struct {
	Width  int
	Height int

	Display *viewport.Metrics

	DefaultAlgorithm Algorithm
	DefaultModelSize ModelSize
}

type rawRequest struct {
	Points    json.RawMessage `json:"points"`
	Boundary  json.RawMessage `json:"boundary"`
	Algorithm string          `json:"algorithm"`
	ModelSize string          `json:"modelSize"`
}

type rawPoint struct {
	X     *float64        `json:"x"`
	Y     *float64        `json:"y"`
	Label json.RawMessage `json:"label"`
}

type rawBoundary struct {
	Points []rawVertex `json:"points"`
}

type rawVertex struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Validate parses and validates a raw payload. The returned request is
// canonical: integer pixel coordinates, label triples for point mode, an
// ordered vertex list for boundary mode. Validation runs entirely in memory
// before any worker resource is touched.
func (v Validator) Validate(raw []byte) (*Request, error) {
	var payload rawRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, malformed("decode payload", err)
	}

	points, err := v.parsePoints(payload.Points)
	if err != nil {
		return nil, err
	}
	boundary, err := v.parseBoundary(payload.Boundary)
	if err != nil {
		return nil, err
	}

	switch {
	case len(points) == 0 && len(boundary) == 0:
		return nil, invalid("validate", "add at least one point or a boundary before segmenting", ErrMissingPrompt)
	case len(points) > 0 && len(boundary) > 0:
		return nil, invalid("validate", "points and boundary prompts are mutually exclusive", nil)
	}

	algorithmName := payload.Algorithm
	if strings.TrimSpace(algorithmName) == "" {
		algorithmName = string(v.DefaultAlgorithm)
	}
	algorithm, ok := ParseAlgorithm(algorithmName)
	if !ok {
		return nil, invalid("validate", fmt.Sprintf("unknown algorithm %q", algorithmName), nil)
	}
	sizeName := payload.ModelSize
	if strings.TrimSpace(sizeName) == "" {
		sizeName = string(v.DefaultModelSize)
	}
	modelSize, ok := ParseModelSize(sizeName)
	if !ok {
		return nil, invalid("validate", fmt.Sprintf("unknown model size %q", sizeName), nil)
	}

	req := &Request{Algorithm: algorithm, ModelSize: modelSize}
	if len(points) > 0 {
		req.Mode = ModePoints
		req.Points = points
	} else {
		req.Mode = ModeBoundary
		req.Boundary = boundary
	}
	return req, nil
}

func (v Validator) parsePoints(raw json.RawMessage) ([]Point, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var entries []rawPoint
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, malformed("decode points", err)
	}
	points := make([]Point, 0, len(entries))
	for i, entry := range entries {
		x, y, err := v.coordinate("point", i, entry.X, entry.Y)
		if err != nil {
			return nil, err
		}
		label, err := parseLabel(entry.Label)
		if err != nil {
			return nil, invalid("validate", fmt.Sprintf("point %d: %v", i, err), nil)
		}
		points = append(points, Point{X: x, Y: y, Label: label})
	}
	return points, nil
}

func (v Validator) parseBoundary(raw json.RawMessage) ([]image.Point, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var boundary rawBoundary
	if err := json.Unmarshal(raw, &boundary); err != nil {
		return nil, malformed("decode boundary", err)
	}
	if len(boundary.Points) == 0 {
		return nil, nil
	}
	if len(boundary.Points) < 2 {
		return nil, invalid("validate", "boundary needs at least 2 points", nil)
	}
	vertices := make([]image.Point, 0, len(boundary.Points))
	for i, entry := range boundary.Points {
		x, y, err := v.coordinate("boundary point", i, entry.X, entry.Y)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, image.Point{X: x, Y: y})
	}
	return vertices, nil
}

// coordinate rounds a raw coordinate to integer pixels and enforces the
// non-negative and in-bounds invariants. Display-space coordinates are mapped
// into image space first.
func (v Validator) coordinate(kind string, index int, xp, yp *float64) (int, int, error) {
	if xp == nil || yp == nil {
		return 0, 0, malformed("decode coordinates", fmt.Errorf("%s %d missing x or y", kind, index))
	}
	x, y := *xp, *yp
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, 0, invalid("validate", fmt.Sprintf("%s %d has a non-finite coordinate", kind, index), nil)
	}

	var xi, yi int
	if v.Display != nil {
		mapped, ok := v.Display.ToImage(x, y)
		if !ok {
			return 0, 0, invalid("validate", fmt.Sprintf("%s %d is outside the displayed image", kind, index), nil)
		}
		xi, yi = mapped.X, mapped.Y
	} else {
		if x < 0 || y < 0 {
			return 0, 0, invalid("validate", fmt.Sprintf("%s %d has a negative coordinate", kind, index), nil)
		}
		xi = int(math.Round(x))
		yi = int(math.Round(y))
	}

	if v.Width > 0 && xi > v.Width {
		return 0, 0, invalid("validate", fmt.Sprintf("%s %d is outside the image width", kind, index), nil)
	}
	if v.Height > 0 && yi > v.Height {
		return 0, 0, invalid("validate", fmt.Sprintf("%s %d is outside the image height", kind, index), nil)
	}
	return xi, yi, nil
}

func parseLabel(raw json.RawMessage) (Label, error) {
	if len(raw) == 0 {
		return 0, errors.New("label is required")
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "background":
			return LabelBackground, nil
		case "foreground":
			return LabelForeground, nil
		default:
			return 0, fmt.Errorf("ambiguous label %q", name)
		}
	}
	var value int
	if err := json.Unmarshal(raw, &value); err == nil {
		switch value {
		case 0:
			return LabelBackground, nil
		case 1:
			return LabelForeground, nil
		default:
			return 0, fmt.Errorf("ambiguous label %d", value)
		}
	}
	return 0, errors.New("ambiguous label")
}

func invalid(operation, message string, cause error) error {
	return services.Wrap(services.ErrValidation, "geometry", operation, message, cause)
}

func malformed(operation string, cause error) error {
	return services.Wrap(services.ErrValidation, "geometry", operation, "payload is not valid JSON", errors.Join(ErrMalformedPayload, cause))
}
