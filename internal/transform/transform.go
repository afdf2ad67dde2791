package transform

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"treadmark/internal/services"
)

// MinCropSize is the smallest crop edge accepted, in pixels. Anything below
// is rejected as "crop too small" instead of silently producing a degenerate
// buffer.
const MinCropSize = 5

// Target sizes the square transform may render into.
const (
	TargetSmall = 224
	TargetLarge = 320
)

// Options describes the square render applied at the normalize step.
// Rotation is clockwise, matching the on-screen orientation controls.
type Options struct {
	TargetSize     int
	Rotation       int
	FlipHorizontal bool
	FlipVertical   bool
}

// Validate checks the option values against the supported sets.
func (o Options) Validate() error {
	switch o.TargetSize {
	case TargetSmall, TargetLarge:
	default:
		return services.Wrap(services.ErrValidation, "transform", "options",
			fmt.Sprintf("target size %d is not supported (use %d or %d)", o.TargetSize, TargetSmall, TargetLarge), nil)
	}
	switch o.Rotation {
	case 0, 90, 180, 270:
	default:
		return services.Wrap(services.ErrValidation, "transform", "options",
			fmt.Sprintf("rotation %d is not supported (use 0, 90, 180 or 270)", o.Rotation), nil)
	}
	return nil
}

// Crop cuts rect out of img. The rectangle is interpreted in img's own pixel
// space and intersected with its bounds first; if the usable area is smaller
// than MinCropSize on either edge the crop is refused. The input image is
// never mutated.
func Crop(img image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	if img == nil {
		return nil, services.Wrap(services.ErrValidation, "transform", "crop", "no image loaded", nil)
	}
	usable := rect.Canon().Intersect(img.Bounds())
	if usable.Dx() < MinCropSize || usable.Dy() < MinCropSize {
		return nil, services.Wrap(services.ErrValidation, "transform", "crop",
			fmt.Sprintf("crop area %dx%d is too small (minimum %dx%d)", usable.Dx(), usable.Dy(), MinCropSize, MinCropSize), nil)
	}
	return imaging.Crop(img, usable), nil
}

// Apply renders img into a TargetSize square. The operation order is fixed:
// the source is stretched to fill the square, then rotated clockwise, then
// flipped. This reproduces a canvas transform stack of translate-to-center,
// flip scale, rotation, draw; swapping rotation and flip would change the
// orientation for 90/270 rotations combined with a flip.
func Apply(img image.Image, opts Options) (*image.NRGBA, error) {
	if img == nil {
		return nil, services.Wrap(services.ErrValidation, "transform", "apply", "no image loaded", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	out := imaging.Resize(img, opts.TargetSize, opts.TargetSize, imaging.Lanczos)
	switch opts.Rotation {
	case 90:
		out = imaging.Rotate270(out)
	case 180:
		out = imaging.Rotate180(out)
	case 270:
		out = imaging.Rotate90(out)
	}
	if opts.FlipHorizontal {
		out = imaging.FlipH(out)
	}
	if opts.FlipVertical {
		out = imaging.FlipV(out)
	}
	return out, nil
}

// CompositeMask applies destination-in semantics: the result keeps the base
// pixel wherever the mask's alpha is non-zero and is fully transparent
// everywhere else. The mask is resampled to the base's dimensions first when
// they differ; nearest-neighbour keeps mask edges hard. Neither input is
// mutated.
func CompositeMask(base, mask image.Image) (*image.NRGBA, error) {
	if base == nil || mask == nil {
		return nil, services.Wrap(services.ErrValidation, "transform", "composite", "base and mask images are required", nil)
	}
	out := imaging.Clone(base)
	bounds := out.Bounds()

	maskNRGBA := imaging.Clone(mask)
	if !maskNRGBA.Bounds().Size().Eq(bounds.Size()) {
		maskNRGBA = imaging.Resize(maskNRGBA, bounds.Dx(), bounds.Dy(), imaging.NearestNeighbor)
	}

	for y := 0; y < bounds.Dy(); y++ {
		rowOut := out.Pix[y*out.Stride:]
		rowMask := maskNRGBA.Pix[y*maskNRGBA.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			if rowMask[x*4+3] == 0 {
				rowOut[x*4] = 0
				rowOut[x*4+1] = 0
				rowOut[x*4+2] = 0
				rowOut[x*4+3] = 0
			}
		}
	}
	return out, nil
}
