package filter

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/gogpu/gg"
)

// CrossOptions controls the scribbled cross drawn over the mouth.
type CrossOptions struct {
	// JitterRatio extends each stroke past its anchors and bounds the random offset, as a fraction of the stroke span.
	JitterRatio float64
	// LineCount is the number of passes. Each pass draws both diagonals.
	LineCount int
	// Color is the ink. Only its RGB channels are used.
	Color color.NRGBA
	// Alpha in (0,1) blends every stroke back over the image instead of painting it opaque.
	Alpha float64
}

// DefaultCrossOptions returns ten passes of dark red ink with 35% jitter.
func DefaultCrossOptions() CrossOptions {
	return CrossOptions{
		JitterRatio: 0.35,
		LineCount:   10,
		Color:       color.NRGBA{R: 132, G: 18, B: 18, A: 122},
	}
}

// CrossAnchors are the four corners of the mouth cross.
type CrossAnchors struct {
	UpperLeft  image.Point
	LowerLeft  image.Point
	UpperRight image.Point
	LowerRight image.Point
}

// MouthAnchors pulls each lip point a fifth of the way toward its jaw point.
func MouthAnchors(m landmarks.Mouth) CrossAnchors {
	return CrossAnchors{
		UpperLeft:  towardJaw(m.UpperLipLeft, m.JawLeft),
		LowerLeft:  towardJaw(m.LowerLipLeft, m.JawLowerLeft),
		UpperRight: towardJaw(m.UpperLipRight, m.JawRight),
		LowerRight: towardJaw(m.LowerLipRight, m.JawLowerRight),
	}
}

func towardJaw(lip, jaw image.Point) image.Point {
	return image.Pt(floorDiv(4*lip.X+jaw.X, 5), floorDiv(4*lip.Y+jaw.Y, 5))
}

// LineWidth is a fiftieth of the face width, at least one pixel.
func LineWidth(m landmarks.Mouth) int {
	return max(floorDiv(m.FaceWidth(), 50), 1)
}

type stroke struct {
	x1, y1, x2, y2 float64
}

// jitter extends p1->p2 by ratio at both ends and moves each end by a uniform
// integer offset bounded by ratio times the span on that axis.
func jitter(p1, p2 image.Point, ratio float64, rng *rand.Rand) stroke {
	dx, dy := p2.X-p1.X, p2.Y-p1.Y
	jx := int(ratio * math.Abs(float64(dx)))
	jy := int(ratio * math.Abs(float64(dy)))

	var s stroke
	s.x1 = float64(p1.X) - float64(dx)*ratio + float64(randInt(rng, jx))
	s.y1 = float64(p1.Y) - float64(dy)*ratio + float64(randInt(rng, jy))
	s.x2 = float64(p2.X) + float64(dx)*ratio + float64(randInt(rng, jx))
	s.y2 = float64(p2.Y) + float64(dy)*ratio + float64(randInt(rng, jy))
	return s
}

// randInt returns a uniform integer in [-j, j].
func randInt(rng *rand.Rand, j int) int {
	return rng.IntN(2*j+1) - j
}

// DrawMouthCross scribbles LineCount jittered diagonal pairs across the mouth.
// The same rng state always produces the same strokes.
func DrawMouthCross(img *image.NRGBA, m landmarks.Mouth, opts CrossOptions, rng *rand.Rand) (*image.NRGBA, error) {
	anchors := MouthAnchors(m)
	width := float64(LineWidth(m))
	ink := color.NRGBA{R: opts.Color.R, G: opts.Color.G, B: opts.Color.B, A: 255}
	diagonals := [2][2]image.Point{
		{anchors.UpperLeft, anchors.LowerRight},
		{anchors.LowerLeft, anchors.UpperRight},
	}

	blended := opts.Alpha > 0 && opts.Alpha < 1
	out := img
	dc := newInkContext(out, ink, width)
	defer func() { dc.Close() }()

	for i := 0; i < opts.LineCount; i++ {
		for _, d := range diagonals {
			s := jitter(d[0], d[1], opts.JitterRatio, rng)
			// gg samples pixel centres at half-integer coordinates
			dc.DrawLine(s.x1+0.5, s.y1+0.5, s.x2+0.5, s.y2+0.5)
			if err := dc.Stroke(); err != nil {
				return nil, fmt.Errorf("stroke mouth cross: %w", err)
			}
			if blended {
				out = raster.Blend(out, raster.Opaque(dc.Image()), opts.Alpha)
				dc.Close()
				dc = newInkContext(out, ink, width)
			}
		}
	}

	if blended {
		return raster.Opaque(out), nil
	}
	return raster.Opaque(dc.Image()), nil
}

func newInkContext(img image.Image, ink color.Color, width float64) *gg.Context {
	dc := gg.NewContextForImage(img)
	dc.SetColor(ink)
	dc.SetLineWidth(width)
	dc.SetLineCap(gg.LineCapButt)
	return dc
}
