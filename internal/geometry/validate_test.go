package geometry_test

import (
	"errors"
	"strings"
	"testing"

	"treadmark/internal/geometry"
	"treadmark/internal/services"
)

func TestValidatePointsCanonicalForm(t *testing.T) {
	payload := `{
		"points": [
			{"x": 10, "y": 20, "label": "foreground"},
			{"x": 30.4, "y": 39.6, "label": "background"},
			{"x": 5, "y": 6, "label": 1}
		],
		"algorithm": "sam2",
		"modelSize": "base"
	}`
	req, err := geometry.Validator{}.Validate([]byte(payload))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if req.Mode != geometry.ModePoints {
		t.Fatalf("expected points mode, got %s", req.Mode)
	}
	triples := req.Triples()
	want := [][3]int{{10, 20, 1}, {30, 40, 0}, {5, 6, 1}}
	if len(triples) != len(want) {
		t.Fatalf("expected %d triples, got %d", len(want), len(triples))
	}
	for i := range want {
		if triples[i] != want[i] {
			t.Fatalf("triple %d: expected %v, got %v", i, want[i], triples[i])
		}
	}
	if req.Algorithm != geometry.AlgorithmSAM2 || req.ModelSize != geometry.ModelBase {
		t.Fatalf("unexpected algorithm/model: %s/%s", req.Algorithm, req.ModelSize)
	}
	if req.PromptType() != "point" {
		t.Fatalf("expected point prompt type, got %s", req.PromptType())
	}
	if req.ForegroundCount() != 2 {
		t.Fatalf("expected 2 foreground points, got %d", req.ForegroundCount())
	}
}

func TestValidateMissingPrompt(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"empty object", `{}`},
		{"empty points", `{"points": []}`},
		{"both empty", `{"points": [], "boundary": {"points": []}}`},
		{"null fields", `{"points": null, "boundary": null}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := geometry.Validator{}.Validate([]byte(tc.payload))
			if !errors.Is(err, geometry.ErrMissingPrompt) {
				t.Fatalf("expected missing prompt error, got %v", err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
		})
	}
}

func TestValidateMalformedPayloadDistinct(t *testing.T) {
	_, err := geometry.Validator{}.Validate([]byte(`{"points": "garbage`))
	if !errors.Is(err, geometry.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
	if errors.Is(err, geometry.ErrMissingPrompt) {
		t.Fatalf("malformed payload must not read as missing prompt: %v", err)
	}

	_, err = geometry.Validator{}.Validate([]byte(`{"points": [{"y": 2, "label": 1}]}`))
	if !errors.Is(err, geometry.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload for missing x, got %v", err)
	}
}

func TestValidateBoundaryMinimum(t *testing.T) {
	_, err := geometry.Validator{}.Validate([]byte(`{"boundary": {"points": [{"x": 1, "y": 2}]}}`))
	if err == nil {
		t.Fatal("expected single-vertex boundary to fail")
	}
	if !strings.Contains(err.Error(), "at least 2") {
		t.Fatalf("unexpected error: %v", err)
	}

	req, err := geometry.Validator{}.Validate([]byte(`{"boundary": {"points": [{"x": 1, "y": 2}, {"x": 9, "y": 4}]}}`))
	if err != nil {
		t.Fatalf("two-vertex boundary should validate: %v", err)
	}
	if req.Mode != geometry.ModeBoundary {
		t.Fatalf("expected boundary mode, got %s", req.Mode)
	}
	if req.PromptType() != "box" {
		t.Fatalf("expected box prompt type, got %s", req.PromptType())
	}
}

func TestValidateBoundaryCanonicalForm(t *testing.T) {
	payload := `{"boundary": {"points": [{"x": 40, "y": 10}, {"x": 5, "y": 90}, {"x": 70, "y": 55}]}}`
	req, err := geometry.Validator{}.Validate([]byte(payload))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	flat := req.FlatBoundary()
	want := []int{40, 10, 5, 90, 70, 55}
	if len(flat) != len(want) {
		t.Fatalf("expected %d coordinates, got %d", len(want), len(flat))
	}
	for i := range want {
		if flat[i] != want[i] {
			t.Fatalf("flat[%d]: expected %d, got %d (order must be preserved)", i, want[i], flat[i])
		}
	}
	bbox, ok := req.BBox()
	if !ok {
		t.Fatal("expected bbox")
	}
	if bbox != [4]int{5, 10, 70, 90} {
		t.Fatalf("unexpected bbox: %v", bbox)
	}
}

func TestValidateAmbiguousLabel(t *testing.T) {
	cases := []string{
		`{"points": [{"x": 1, "y": 2, "label": "maybe"}]}`,
		`{"points": [{"x": 1, "y": 2, "label": 3}]}`,
		`{"points": [{"x": 1, "y": 2}]}`,
	}
	for _, payload := range cases {
		_, err := geometry.Validator{}.Validate([]byte(payload))
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %s, got %v", payload, err)
		}
		if errors.Is(err, geometry.ErrMissingPrompt) {
			t.Fatalf("label problem must not read as missing prompt: %v", err)
		}
	}
}

func TestValidateMutuallyExclusive(t *testing.T) {
	payload := `{
		"points": [{"x": 1, "y": 2, "label": 1}],
		"boundary": {"points": [{"x": 0, "y": 0}, {"x": 9, "y": 9}]}
	}`
	_, err := geometry.Validator{}.Validate([]byte(payload))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	v := geometry.Validator{Width: 800, Height: 600}
	if _, err := v.Validate([]byte(`{"points": [{"x": 801, "y": 10, "label": 1}]}`)); err == nil {
		t.Fatal("expected out-of-width point to fail")
	}
	if _, err := v.Validate([]byte(`{"points": [{"x": 10, "y": 601, "label": 1}]}`)); err == nil {
		t.Fatal("expected out-of-height point to fail")
	}
	if _, err := v.Validate([]byte(`{"points": [{"x": 800, "y": 600, "label": 1}]}`)); err != nil {
		t.Fatalf("boundary-inclusive point should validate: %v", err)
	}
	if _, err := v.Validate([]byte(`{"points": [{"x": -1, "y": 0, "label": 1}]}`)); err == nil {
		t.Fatal("expected negative coordinate to fail")
	}
}

func TestValidateUnknownAlgorithm(t *testing.T) {
	_, err := geometry.Validator{}.Validate([]byte(`{"points": [{"x": 1, "y": 2, "label": 1}], "algorithm": "magic"}`))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
