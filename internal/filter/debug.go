package filter

import (
	"fmt"
	"hash/fnv"
	"image"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/gogpu/gg"
)

// LabelLandmarks marks every landmark point of every face. Each region gets its own hue
// and points brighten along the region's order, so index direction is visible.
// bottom_lip is skipped because it retraces top_lip's corners.
func LabelLandmarks(img image.Image, faces []landmarks.Set) (*image.NRGBA, error) {
	work := raster.Opaque(img)
	dc := gg.NewContextForImage(work)
	defer dc.Close()

	radius := max(float64(work.Rect.Dx())/200, 1.5)
	for _, face := range faces {
		for _, name := range face.Regions() {
			if name == landmarks.BottomLip {
				continue
			}
			pts := face[name]
			hue := regionHue(name)
			for i, p := range pts {
				lightness := 0.3 + 0.5*float64(i)/float64(max(len(pts)-1, 1))
				dc.SetColor(gg.HSL(hue, 0.9, lightness).Color())
				dc.DrawCircle(float64(p.X)+0.5, float64(p.Y)+0.5, radius)
				if err := dc.Fill(); err != nil {
					return nil, fmt.Errorf("mark %s[%d]: %w", name, i, err)
				}
			}
		}
	}
	return raster.Opaque(dc.Image()), nil
}

func regionHue(name string) float64 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return float64(h.Sum32() % 360)
}
