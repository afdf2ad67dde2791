package worker

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"treadmark/internal/geometry"
	"treadmark/internal/services"
)

// GrayscaleMode names a worker-side grayscale filter. The set is opaque to
// the orchestration core and forwarded verbatim on the --mode flag.
type GrayscaleMode string

const (
	GrayscaleStandard GrayscaleMode = "standard"
	GrayscaleCLAHE    GrayscaleMode = "clahe"
	GrayscaleAdaptive GrayscaleMode = "adaptive"
	GrayscaleGaussian GrayscaleMode = "gaussian"
)

// ParseGrayscaleMode validates a mode name. The long client-side spellings
// are folded onto the worker flag vocabulary.
func ParseGrayscaleMode(value string) (GrayscaleMode, bool) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "standard":
		return GrayscaleStandard, true
	case "clahe":
		return GrayscaleCLAHE, true
	case "adaptive", "adaptivethreshold":
		return GrayscaleAdaptive, true
	case "gaussian", "gaussianblur":
		return GrayscaleGaussian, true
	default:
		return "", false
	}
}

// Params carries the structured arguments of one invocation. Segmentation
// uses the prompt fields; grayscale uses Mode. MIMEType picks the staged
// input file extension.
type Params struct {
	MIMEType string

	Algorithm  geometry.Algorithm
	ModelSize  geometry.ModelSize
	PromptType string
	Points     [][2]int
	Labels     []int
	BBox       *[4]int

	Mode GrayscaleMode
}

// SegmentationParams builds invocation parameters from a canonical request.
func SegmentationParams(req *geometry.Request, mimeType string) Params {
	p := Params{
		MIMEType:   mimeType,
		Algorithm:  req.Algorithm,
		ModelSize:  req.ModelSize,
		PromptType: req.PromptType(),
	}
	if req.Mode == geometry.ModePoints {
		p.Points = req.PointPairs()
		p.Labels = req.LabelValues()
	} else if bbox, ok := req.BBox(); ok {
		p.BBox = &bbox
	}
	return p
}

// flags renders the kind-specific command line flags. Structured values
// travel as base64 tokens of canonical JSON arrays rather than raw argv
// text, avoiding shell-escaping and argument-length pitfalls.
func (p Params) flags(kind Kind) ([]string, error) {
	switch kind {
	case KindSegmentation:
		return p.segmentationFlags()
	case KindGrayscale:
		return p.grayscaleFlags()
	default:
		return nil, services.Wrap(services.ErrValidation, "worker", "invoke", fmt.Sprintf("unknown worker kind %q", kind), nil)
	}
}

func (p Params) segmentationFlags() ([]string, error) {
	if p.Algorithm == "" || p.ModelSize == "" {
		return nil, services.Wrap(services.ErrValidation, "worker", "segmentation", "algorithm and model size are required", nil)
	}
	if p.PromptType != "point" && p.PromptType != "box" {
		return nil, services.Wrap(services.ErrValidation, "worker", "segmentation", fmt.Sprintf("unknown prompt type %q", p.PromptType), nil)
	}
	flags := []string{
		"--algorithm", string(p.Algorithm),
		"--model-size", string(p.ModelSize),
		"--prompt-type", p.PromptType,
	}
	if len(p.Points) > 0 {
		points, err := encodeToken(p.Points)
		if err != nil {
			return nil, err
		}
		labels, err := encodeToken(p.Labels)
		if err != nil {
			return nil, err
		}
		flags = append(flags, "--points-b64", points, "--labels-b64", labels)
	}
	if p.BBox != nil {
		bbox, err := encodeToken(*p.BBox)
		if err != nil {
			return nil, err
		}
		flags = append(flags, "--bbox-b64", bbox)
	}
	return flags, nil
}

func (p Params) grayscaleFlags() ([]string, error) {
	if _, ok := ParseGrayscaleMode(string(p.Mode)); !ok {
		return nil, services.Wrap(services.ErrValidation, "worker", "grayscale", fmt.Sprintf("unknown grayscale mode %q", p.Mode), nil)
	}
	return []string{"--mode", string(p.Mode)}, nil
}

// encodeToken marshals v as canonical JSON and base64-encodes the result.
func encodeToken(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "worker", "encode arguments", "unable to encode prompt payload", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeToken reverses encodeToken; shared with tests and diagnostic tools.
func DecodeToken(token string, v any) error {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	return json.Unmarshal(data, v)
}
