package transform

import (
	"bytes"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"treadmark/internal/services"
)

// DecodeBytes decodes PNG or JPEG bytes into an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transform", "decode", "image data is corrupt or in an unsupported format", err)
	}
	return img, nil
}

// EncodePNG encodes an image as PNG bytes. Masks and working previews travel
// as PNG throughout the pipeline because it preserves the alpha channel.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, services.Wrap(services.ErrResource, "transform", "encode", "unable to encode PNG", err)
	}
	return buf.Bytes(), nil
}

// ExtensionForMIME returns the worker input file extension for a declared
// image MIME type. PNG is the default for anything that is not JPEG.
func ExtensionForMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	default:
		return "png"
	}
}

// SupportedMIME reports whether the declared MIME type is one the pipeline
// accepts for upload.
func SupportedMIME(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png", "image/jpeg", "image/jpg":
		return true
	default:
		return false
	}
}
