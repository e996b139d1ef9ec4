package raster

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, r, g, b uint8) *image.NRGBA {
	return Filled(w, h, color.NRGBA{R: r, G: g, B: b, A: 255})
}

func px(img *image.NRGBA, x, y int) color.NRGBA {
	return img.NRGBAAt(x, y)
}

func TestOpaqueDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 7))
	src.SetNRGBA(5, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	out := Opaque(src)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, px(out, 0, 0))
	assert.Equal(t, uint8(0), src.Pix[3], "source must not change")
}

func TestChannelOps(t *testing.T) {
	a := solid(1, 1, 200, 100, 0)
	b := solid(1, 1, 100, 200, 255)

	tests := []struct {
		name string
		got  *image.NRGBA
		want color.NRGBA
	}{
		{"multiply", Multiply(a, b), color.NRGBA{78, 78, 0, 255}},
		{"add", Add(a, b), color.NRGBA{255, 255, 255, 255}},
		{"darker", Darker(a, b), color.NRGBA{100, 100, 0, 255}},
		{"blend half", Blend(a, b, 0.5), color.NRGBA{150, 150, 127, 255}},
		{"blend zero", Blend(a, b, 0), color.NRGBA{200, 100, 0, 255}},
		// base >= 128 screens, base < 128 multiplies
		{"overlay", Overlay(a, b), color.NRGBA{188, 157, 0, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, px(tt.got, 0, 0))
		})
	}
}

func TestDarkerNeverBrighter(t *testing.T) {
	a := solid(3, 2, 40, 220, 128)
	b := solid(3, 2, 90, 10, 128)
	out := Darker(a, b)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			assert.LessOrEqual(t, out.Pix[i+c], a.Pix[i+c])
			assert.LessOrEqual(t, out.Pix[i+c], b.Pix[i+c])
		}
	}
}

func TestResizeClampsDimensions(t *testing.T) {
	src := solid(10, 10, 50, 50, 50)

	out := Resize(src, 0, -3)
	assert.Equal(t, image.Rect(0, 0, 1, 1), out.Bounds())

	out = Resize(image.NewNRGBA(image.Rectangle{}), 4, 3)
	assert.Equal(t, image.Rect(0, 0, 4, 3), out.Bounds())
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, px(out, 2, 1))

	out = Resize(src, 20, 5)
	assert.Equal(t, image.Rect(0, 0, 20, 5), out.Bounds())
	assert.Equal(t, color.NRGBA{50, 50, 50, 255}, px(out, 10, 2))
}

func TestGaussianBlurZeroRadiusCopies(t *testing.T) {
	src := solid(4, 4, 9, 8, 7)
	out := GaussianBlur(src, 0)
	assert.Equal(t, src.Pix, out.Pix)
	out.Pix[0] = 1
	assert.Equal(t, uint8(9), src.Pix[0])
}

func TestUnsharpMaskFlatImageUnchanged(t *testing.T) {
	src := solid(8, 8, 120, 60, 30)
	out := UnsharpMask(src, 2, 200, 3)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestUnsharpMaskBoostsEdges(t *testing.T) {
	src := solid(10, 10, 0, 0, 0)
	for y := 0; y < 10; y++ {
		for x := 5; x < 10; x++ {
			src.SetNRGBA(x, y, color.NRGBA{200, 200, 200, 255})
		}
	}
	out := UnsharpMask(src, 1, 200, 3)
	assert.Greater(t, px(out, 5, 5).R, uint8(200))
	assert.Equal(t, uint8(0), px(out, 0, 5).R)
}

func TestLayerClipsToCanvas(t *testing.T) {
	src := solid(4, 4, 255, 255, 255)
	out := Layer(5, 5, src, image.Pt(3, -2))
	assert.Equal(t, image.Rect(0, 0, 5, 5), out.Bounds())
	assert.Equal(t, uint8(255), px(out, 4, 1).R)
	assert.Equal(t, uint8(0), px(out, 2, 1).R)
	assert.Equal(t, uint8(0), px(out, 4, 2).R)
}

func TestEncodeDecode(t *testing.T) {
	src := solid(6, 4, 10, 200, 30)

	for _, format := range []string{"png", "jpeg", "bmp"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, src, format))
			img, got, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, format, got)
			assert.Equal(t, 6, img.Bounds().Dx())
		})
	}

	_, _, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
