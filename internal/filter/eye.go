package filter

import (
	"image"
	"math"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/raster"
)

// eyeScale pads every eye measurement by 10%.
const eyeScale = 1.1

// EyeComposite is the single blended eye that replaces both real eyes.
type EyeComposite struct {
	Image *image.NRGBA
	// Anchor is the midpoint between the outer corners of the two eyes.
	Anchor image.Point
}

// Size returns the composite's width and height.
func (c EyeComposite) Size() image.Point {
	return c.Image.Rect.Size()
}

// ComposeEye extracts both eyes, resamples them to a common size, averages them,
// and stretches the result to span the full distance between the outer corners.
func ComposeEye(img *image.NRGBA, left, right landmarks.Eye) EyeComposite {
	anchor := image.Pt((right.Right.X+left.Left.X)/2, (right.Right.Y+left.Left.Y)/2)

	leftCrop := Extract(img, left.Polygon())
	rightCrop := Extract(img, right.Polygon())

	// 1. Common size: the wider eye and the more open eye, padded
	targetW := max(int(eyeScale*float64(max(left.Width(), right.Width()))), 1)
	targetH := max(int(eyeScale*float64(max(left.Opening(), right.Opening()))), 1)

	blended := raster.Blend(
		raster.Resize(leftCrop, targetW, targetH),
		raster.Resize(rightCrop, targetW, targetH),
		0.5,
	)

	// 2. Stretch across both eyes, keeping the blended aspect ratio
	w := max(int(math.Round(eyeScale*float64(right.Right.X-left.Left.X))), 1)
	h := max(int(float64(targetH)*float64(w)/float64(targetW)), 1)

	return EyeComposite{
		Image:  raster.Resize(blended, w, h),
		Anchor: anchor,
	}
}
