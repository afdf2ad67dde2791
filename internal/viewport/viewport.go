package viewport

import (
	"fmt"
	"image"
	"math"
)

// Size is a width/height pair in whole pixels.
type Size struct {
	Width  int
	Height int
}

// Metrics captures the letterboxed placement of an image inside a stage
// surface. All mapping calls derive from one Metrics value; when the stage is
// resized or a different image is loaded the caller must recompute before
// mapping again.
type Metrics struct {
	Image Size
	Stage Size

	// DisplayWidth/DisplayHeight are the rendered image dimensions inside
	// the stage; OffsetX/OffsetY are the letterbox margins.
	DisplayWidth  float64
	DisplayHeight float64
	OffsetX       float64
	OffsetY       float64

	// Scale is image pixels per display pixel, identical on both axes.
	Scale float64
}

// Compute fits an image of the given intrinsic size into the stage surface,
// preserving aspect ratio and centering the result. Wider-than-stage images
// letterbox vertically, taller ones horizontally.
func Compute(imageSize, stageSize Size) (Metrics, error) {
	if imageSize.Width <= 0 || imageSize.Height <= 0 {
		return Metrics{}, fmt.Errorf("image size %dx%d is not positive", imageSize.Width, imageSize.Height)
	}
	if stageSize.Width <= 0 || stageSize.Height <= 0 {
		return Metrics{}, fmt.Errorf("stage size %dx%d is not positive", stageSize.Width, stageSize.Height)
	}

	imageRatio := float64(imageSize.Width) / float64(imageSize.Height)
	stageRatio := float64(stageSize.Width) / float64(stageSize.Height)

	m := Metrics{Image: imageSize, Stage: stageSize}
	if imageRatio > stageRatio {
		m.DisplayWidth = float64(stageSize.Width)
		m.DisplayHeight = float64(stageSize.Width) / imageRatio
		m.OffsetY = (float64(stageSize.Height) - m.DisplayHeight) / 2
	} else {
		m.DisplayHeight = float64(stageSize.Height)
		m.DisplayWidth = float64(stageSize.Height) * imageRatio
		m.OffsetX = (float64(stageSize.Width) - m.DisplayWidth) / 2
	}
	m.Scale = float64(imageSize.Width) / m.DisplayWidth
	return m, nil
}

// ToImage maps a stage-local point (relative to the stage's top-left corner)
// to canonical image pixels, rounding to the nearest integer pixel. The
// second return is false when the point lies outside the displayed image
// rectangle; such points carry no image position and must be ignored by the
// caller.
func (m Metrics) ToImage(x, y float64) (image.Point, bool) {
	localX := x - m.OffsetX
	localY := y - m.OffsetY
	if localX < 0 || localX > m.DisplayWidth || localY < 0 || localY > m.DisplayHeight {
		return image.Point{}, false
	}
	return image.Point{
		X: int(math.Round(localX * m.Scale)),
		Y: int(math.Round(localY * m.Scale)),
	}, true
}

// ClampToImage maps a stage-local point to image pixels, first clamping it
// into the displayed rectangle. Used for drag gestures that cross the
// letterbox edge.
func (m Metrics) ClampToImage(x, y float64) image.Point {
	localX := clamp(x-m.OffsetX, 0, m.DisplayWidth)
	localY := clamp(y-m.OffsetY, 0, m.DisplayHeight)
	return image.Point{
		X: int(math.Round(localX * m.Scale)),
		Y: int(math.Round(localY * m.Scale)),
	}
}

// ToDisplay maps an image pixel back to stage-local coordinates. It is the
// exact float inverse of the forward mapping; integer rounding happens only
// in the image-space direction.
func (m Metrics) ToDisplay(p image.Point) (float64, float64) {
	return float64(p.X)/m.Scale + m.OffsetX, float64(p.Y)/m.Scale + m.OffsetY
}

// RectToImage maps a stage-local rectangle to a canonical image rectangle,
// clamping both corners into the displayed area.
func (m Metrics) RectToImage(x0, y0, x1, y1 float64) image.Rectangle {
	a := m.ClampToImage(x0, y0)
	b := m.ClampToImage(x1, y1)
	return image.Rect(a.X, a.Y, b.X, b.Y)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
