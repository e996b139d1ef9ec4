package filter

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/gogpu/gg"
)

const (
	vignetteWidth  = 1.5  // ellipse width per composite width
	vignetteHeight = 4.0  // ellipse height per composite height
	vignetteBlur   = 0.05 // blur radius per composite width
	enlargeWidth   = 1.2
	enlargeHeight  = 1.5
	sharpenPercent = 200
	sharpenFloor   = 3
)

// ApplyVignette darkens an elliptical region around the eye anchor and adds a sharpened,
// enlarged copy of the composite eye on top of it. It returns the new image and the
// rectangle the eye was placed in (which may extend past the image).
func ApplyVignette(img *image.NRGBA, eye EyeComposite) (*image.NRGBA, image.Rectangle, error) {
	size := eye.Size()
	bounds := img.Rect.Size()

	// 1. Black ellipse on white, anchored the way a box-drawn ellipse is
	ew := vignetteWidth * float64(size.X)
	eh := vignetteHeight * float64(size.Y)
	x0 := float64(eye.Anchor.X) - math.Floor(ew/2)
	y0 := float64(eye.Anchor.Y) - math.Floor(eh/2)

	dc := gg.NewContext(bounds.X, bounds.Y)
	defer dc.Close()
	dc.ClearWithColor(gg.White)
	dc.SetColor(color.Black)
	dc.DrawEllipse(x0+ew/2, y0+eh/2, ew/2, eh/2)
	if err := dc.Fill(); err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("fill vignette ellipse: %w", err)
	}

	// 2. Soften the edge and darken the image under it
	mask := raster.GaussianBlur(dc.Image(), float64(int(vignetteBlur*float64(size.X))))
	vignetted := raster.Multiply(img, mask)

	// 3. Enlarge and sharpen the eye
	enlarged := raster.Resize(eye.Image,
		int(enlargeWidth*float64(size.X)),
		int(enlargeHeight*float64(size.Y)),
	)
	sharp := raster.UnsharpMask(enlarged, float64(enlarged.Rect.Dx()/10), sharpenPercent, sharpenFloor)

	// 4. Add it centred on the anchor
	at := image.Pt(
		eye.Anchor.X-floorDiv(sharp.Rect.Dx(), 2),
		eye.Anchor.Y-floorDiv(sharp.Rect.Dy(), 2),
	)
	layer := raster.Layer(bounds.X, bounds.Y, sharp, at)
	placed := image.Rectangle{Min: at, Max: at.Add(sharp.Rect.Size())}

	return raster.Add(vignetted, layer), placed, nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
