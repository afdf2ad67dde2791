package transform_test

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"treadmark/internal/services"
	"treadmark/internal/transform"
)

var (
	red    = color.NRGBA{R: 255, A: 255}
	green  = color.NRGBA{G: 255, A: 255}
	blue   = color.NRGBA{B: 255, A: 255}
	yellow = color.NRGBA{R: 255, G: 255, A: 255}
)

// quadrantImage builds a size x size image with a distinct flat color per
// quadrant: top-left red, top-right green, bottom-left blue, bottom-right
// yellow.
func quadrantImage(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var c color.NRGBA
			switch {
			case x < half && y < half:
				c = red
			case x >= half && y < half:
				c = green
			case x < half && y >= half:
				c = blue
			default:
				c = yellow
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func colorClose(a, b color.NRGBA, tolerance int) bool {
	diff := func(x, y uint8) int {
		d := int(x) - int(y)
		if d < 0 {
			d = -d
		}
		return d
	}
	return diff(a.R, b.R) <= tolerance &&
		diff(a.G, b.G) <= tolerance &&
		diff(a.B, b.B) <= tolerance &&
		diff(a.A, b.A) <= tolerance
}

func sampleQuadrants(t *testing.T, img *image.NRGBA) [4]color.NRGBA {
	t.Helper()
	size := img.Bounds().Dx()
	q := size / 4
	return [4]color.NRGBA{
		img.NRGBAAt(q, q),         // top-left
		img.NRGBAAt(size-q, q),    // top-right
		img.NRGBAAt(q, size-q),    // bottom-left
		img.NRGBAAt(size-q, size-q), // bottom-right
	}
}

func TestCropRejectsTooSmall(t *testing.T) {
	img := quadrantImage(100)
	cases := []image.Rectangle{
		image.Rect(0, 0, 4, 50),
		image.Rect(0, 0, 50, 4),
		image.Rect(10, 10, 12, 12),
		image.Rect(98, 98, 140, 140), // clamps to 2x2
	}
	for _, rect := range cases {
		_, err := transform.Crop(img, rect)
		if err == nil {
			t.Fatalf("expected crop %v to fail", rect)
		}
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if !strings.Contains(err.Error(), "too small") {
			t.Fatalf("expected a too-small message, got %v", err)
		}
	}
}

func TestCropExtractsRegion(t *testing.T) {
	img := quadrantImage(100)
	out, err := transform.Crop(img, image.Rect(0, 0, 50, 50))
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 50 {
		t.Fatalf("unexpected crop size: %v", out.Bounds())
	}
	if got := out.NRGBAAt(25, 25); got != red {
		t.Fatalf("expected red quadrant content, got %v", got)
	}
	// Minimum edge exactly at the threshold is accepted.
	if _, err := transform.Crop(img, image.Rect(0, 0, 5, 5)); err != nil {
		t.Fatalf("5x5 crop should be accepted: %v", err)
	}
}

func TestCropDoesNotMutateInput(t *testing.T) {
	img := quadrantImage(20)
	before := append([]uint8(nil), img.Pix...)
	if _, err := transform.Crop(img, image.Rect(0, 0, 10, 10)); err != nil {
		t.Fatalf("Crop: %v", err)
	}
	for i := range before {
		if img.Pix[i] != before[i] {
			t.Fatal("crop mutated its input")
		}
	}
}

func TestApplyIdentityIsResize(t *testing.T) {
	img := quadrantImage(100)
	out, err := transform.Apply(img, transform.Options{TargetSize: 224})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Bounds().Dx() != 224 || out.Bounds().Dy() != 224 {
		t.Fatalf("expected 224x224 output, got %v", out.Bounds())
	}
	q := sampleQuadrants(t, out)
	want := [4]color.NRGBA{red, green, blue, yellow}
	for i := range want {
		if !colorClose(q[i], want[i], 8) {
			t.Fatalf("quadrant %d: expected %v, got %v", i, want[i], q[i])
		}
	}
}

func TestApplyRotationIsClockwise(t *testing.T) {
	img := quadrantImage(100)
	out, err := transform.Apply(img, transform.Options{TargetSize: 224, Rotation: 90})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Clockwise quarter turn: bottom-left rises to top-left.
	q := sampleQuadrants(t, out)
	want := [4]color.NRGBA{blue, red, yellow, green}
	for i := range want {
		if !colorClose(q[i], want[i], 8) {
			t.Fatalf("quadrant %d: expected %v, got %v", i, want[i], q[i])
		}
	}
}

func TestApplyFlipComposesAfterRotation(t *testing.T) {
	img := quadrantImage(100)
	out, err := transform.Apply(img, transform.Options{TargetSize: 224, Rotation: 90, FlipHorizontal: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Flip scale composes before rotation in the canvas stack, which means
	// the flip mirrors the already-rotated image. Reversing the order would
	// yield yellow in the top-left.
	q := sampleQuadrants(t, out)
	want := [4]color.NRGBA{red, blue, green, yellow}
	for i := range want {
		if !colorClose(q[i], want[i], 8) {
			t.Fatalf("quadrant %d: expected %v, got %v", i, want[i], q[i])
		}
	}
}

func TestApplyQuarterTurnsCancel(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*2 + y*2) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}

	identity, err := transform.Apply(img, transform.Options{TargetSize: 224})
	if err != nil {
		t.Fatalf("identity Apply: %v", err)
	}
	quarter, err := transform.Apply(img, transform.Options{TargetSize: 224, Rotation: 90})
	if err != nil {
		t.Fatalf("90 Apply: %v", err)
	}
	restored, err := transform.Apply(quarter, transform.Options{TargetSize: 224, Rotation: 270})
	if err != nil {
		t.Fatalf("270 Apply: %v", err)
	}

	var worst int
	for i := range identity.Pix {
		d := int(identity.Pix[i]) - int(restored.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > worst {
			worst = d
		}
	}
	if worst > 6 {
		t.Fatalf("90+270 drifted from identity by %d levels", worst)
	}
}

func TestApplyRejectsUnsupportedOptions(t *testing.T) {
	img := quadrantImage(32)
	if _, err := transform.Apply(img, transform.Options{TargetSize: 100}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for target size, got %v", err)
	}
	if _, err := transform.Apply(img, transform.Options{TargetSize: 224, Rotation: 45}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for rotation, got %v", err)
	}
}

func TestCompositeMaskDestinationIn(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			base.SetNRGBA(x, y, red)
		}
	}
	mask := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			mask.SetNRGBA(x, y, color.NRGBA{R: 1, G: 2, B: 3, A: 200})
		}
	}

	out, err := transform.CompositeMask(base, mask)
	if err != nil {
		t.Fatalf("CompositeMask: %v", err)
	}
	if got := out.NRGBAAt(0, 0); got != red {
		t.Fatalf("masked-in pixel should keep the base color, got %v", got)
	}
	if got := out.NRGBAAt(3, 0); got.A != 0 {
		t.Fatalf("masked-out pixel should be transparent, got %v", got)
	}
}

func TestCompositeMaskResamplesMask(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			base.SetNRGBA(x, y, green)
		}
	}
	// Half-size mask: left column opaque, right transparent.
	mask := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			mask.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}

	out, err := transform.CompositeMask(base, mask)
	if err != nil {
		t.Fatalf("CompositeMask: %v", err)
	}
	if got := out.NRGBAAt(1, 4); got != green {
		t.Fatalf("left half should keep base pixels, got %v", got)
	}
	if got := out.NRGBAAt(6, 4); got.A != 0 {
		t.Fatalf("right half should be transparent, got %v", got)
	}
}

func TestCompositeMaskDoesNotMutateInputs(t *testing.T) {
	base := quadrantImage(8)
	mask := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	baseBefore := append([]uint8(nil), base.Pix...)
	maskBefore := append([]uint8(nil), mask.Pix...)

	if _, err := transform.CompositeMask(base, mask); err != nil {
		t.Fatalf("CompositeMask: %v", err)
	}
	for i := range baseBefore {
		if base.Pix[i] != baseBefore[i] {
			t.Fatal("composite mutated the base image")
		}
	}
	for i := range maskBefore {
		if mask.Pix[i] != maskBefore[i] {
			t.Fatal("composite mutated the mask image")
		}
	}
}

func TestDecodeBytesRejectsGarbage(t *testing.T) {
	if _, err := transform.DecodeBytes([]byte("not an image")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := quadrantImage(16)
	data, err := transform.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := transform.DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if !decoded.Bounds().Size().Eq(img.Bounds().Size()) {
		t.Fatalf("round trip changed dimensions: %v", decoded.Bounds())
	}
}

func TestExtensionForMIME(t *testing.T) {
	cases := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpg",
		"image/jpg":  "jpg",
		"IMAGE/JPEG": "jpg",
		"":           "png",
	}
	for mime, want := range cases {
		if got := transform.ExtensionForMIME(mime); got != want {
			t.Fatalf("ExtensionForMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
