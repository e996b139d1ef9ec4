// Package raster holds the per-pixel algebra the filter is built from.
// Every image is an *image.NRGBA anchored at (0,0) whose alpha bytes are all 255,
// so only the three colour channels carry information.
// Functions never modify their arguments.
package raster

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Opaque copies img into the working representation.
func Opaque(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}
	return out
}

// Filled returns a w x h image painted with c.
func Filled(w, h int, c color.Color) *image.NRGBA {
	return Opaque(imaging.New(w, h, c))
}

// Black returns a w x h black image.
func Black(w, h int) *image.NRGBA {
	return Filled(w, h, color.Black)
}

// combine applies fn to every colour channel of a and b over a's bounds.
// Pixels of a outside b are combined with black.
func combine(a, b *image.NRGBA, fn func(x, y uint8) uint8) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, a.Rect.Dx(), a.Rect.Dy()))
	w, h := a.Rect.Dx(), a.Rect.Dy()
	bw, bh := b.Rect.Dx(), b.Rect.Dy()

	for y := 0; y < h; y++ {
		aRow := y * a.Stride
		oRow := y * out.Stride
		bRow := y * b.Stride
		for x := 0; x < w; x++ {
			ao := aRow + x*4
			oo := oRow + x*4
			if x < bw && y < bh {
				bo := bRow + x*4
				out.Pix[oo] = fn(a.Pix[ao], b.Pix[bo])
				out.Pix[oo+1] = fn(a.Pix[ao+1], b.Pix[bo+1])
				out.Pix[oo+2] = fn(a.Pix[ao+2], b.Pix[bo+2])
			} else {
				out.Pix[oo] = fn(a.Pix[ao], 0)
				out.Pix[oo+1] = fn(a.Pix[ao+1], 0)
				out.Pix[oo+2] = fn(a.Pix[ao+2], 0)
			}
			out.Pix[oo+3] = 255
		}
	}
	return out
}

// Multiply scales a by b: a*b/255.
func Multiply(a, b *image.NRGBA) *image.NRGBA {
	return combine(a, b, func(x, y uint8) uint8 {
		return uint8(int(x) * int(y) / 255)
	})
}

// Add sums a and b, clamped to 255.
func Add(a, b *image.NRGBA) *image.NRGBA {
	return combine(a, b, func(x, y uint8) uint8 {
		return clamp(int(x) + int(y))
	})
}

// Darker keeps the smaller value of each channel.
func Darker(a, b *image.NRGBA) *image.NRGBA {
	return combine(a, b, func(x, y uint8) uint8 {
		return min(x, y)
	})
}

// Overlay uses a as the base layer: dark bases multiply, light bases screen.
func Overlay(a, b *image.NRGBA) *image.NRGBA {
	return combine(a, b, func(x, y uint8) uint8 {
		if x < 128 {
			return clamp(int(x) * int(y) / 127)
		}
		return clamp(255 - (255-int(x))*(255-int(y))/127)
	})
}

// Blend mixes b into a with weight alpha: a + alpha*(b-a).
func Blend(a, b *image.NRGBA, alpha float64) *image.NRGBA {
	return combine(a, b, func(x, y uint8) uint8 {
		v := float64(x) + alpha*(float64(y)-float64(x))
		if v <= 0 {
			return 0
		}
		if v >= 255 {
			return 255
		}
		return uint8(v)
	})
}

// Resize resamples img to w x h with a Lanczos kernel.
// Both dimensions are clamped to at least 1 and an empty source resamples to black.
func Resize(img image.Image, w, h int) *image.NRGBA {
	w, h = max(w, 1), max(h, 1)
	if img.Bounds().Empty() {
		return Black(w, h)
	}
	return Opaque(imaging.Resize(img, w, h, imaging.Lanczos))
}

// GaussianBlur blurs img with standard deviation radius. A radius <= 0 returns a copy.
func GaussianBlur(img image.Image, radius float64) *image.NRGBA {
	if radius <= 0 {
		return Opaque(img)
	}
	return Opaque(imaging.Blur(img, radius))
}

// UnsharpMask sharpens img by adding percent of its difference from a blurred copy.
// Channels whose difference is below threshold are left alone.
func UnsharpMask(img image.Image, radius float64, percent, threshold int) *image.NRGBA {
	src := Opaque(img)
	blurred := GaussianBlur(src, radius)
	return combine(src, blurred, func(x, y uint8) uint8 {
		diff := int(x) - int(y)
		if diff < threshold && -diff < threshold {
			return x
		}
		return clamp(int(x) + diff*percent/100)
	})
}

// Layer returns a black w x h canvas with src pasted at pt, clipped to the canvas.
func Layer(w, h int, src image.Image, pt image.Point) *image.NRGBA {
	return Opaque(imaging.Paste(Black(w, h), src, pt))
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
