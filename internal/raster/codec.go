package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode reads an image and reports the registered format name ("png", "jpeg", "webp", ...).
// EXIF orientation is applied so faces are upright before detection.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unrecognised image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return img, format, nil
}

// Open decodes the image file at path.
func Open(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// Save encodes img to path, picking the codec from the extension.
func Save(img image.Image, path string) error {
	return imaging.Save(img, path)
}

// Encode writes img in the named format. Formats without an encoder fall back to PNG.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(95))
	case "gif":
		return imaging.Encode(w, img, imaging.GIF)
	case "bmp":
		return imaging.Encode(w, img, imaging.BMP)
	default:
		return imaging.Encode(w, img, imaging.PNG)
	}
}
