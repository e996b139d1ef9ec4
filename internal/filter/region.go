package filter

import (
	"image"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/raster"
)

// Extract keeps the pixels of img inside polygon (boundary included), zeroes the rest,
// and crops to the polygon's bounding box. Parts of the box outside img stay black.
// Polygons with fewer than three points or no area yield a black image of box size.
func Extract(img *image.NRGBA, polygon []image.Point) *image.NRGBA {
	box := landmarks.Bounds(polygon)
	out := raster.Black(box.Dx(), box.Dy())
	if len(polygon) < 3 || doubleArea(polygon) == 0 {
		return out
	}

	// 1. Only the part of the box that overlaps the source can be copied
	visible := box.Intersect(img.Rect)
	if visible.Empty() {
		return out
	}

	// 2. Rasterise the mask row by row and copy the covered pixels
	for y := visible.Min.Y; y < visible.Max.Y; y++ {
		srcRow := img.PixOffset(visible.Min.X, y)
		dstRow := (y-box.Min.Y)*out.Stride + (visible.Min.X-box.Min.X)*4
		for x := visible.Min.X; x < visible.Max.X; x++ {
			if !insidePolygon(polygon, x, y) {
				continue
			}
			so := srcRow + (x-visible.Min.X)*4
			do := dstRow + (x-visible.Min.X)*4
			out.Pix[do] = img.Pix[so]
			out.Pix[do+1] = img.Pix[so+1]
			out.Pix[do+2] = img.Pix[so+2]
		}
	}
	return out
}

// doubleArea is twice the signed shoelace area.
func doubleArea(poly []image.Point) int {
	sum := 0
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum
}

// insidePolygon reports whether the integer point (x, y) lies inside poly or on one of its edges.
func insidePolygon(poly []image.Point, x, y int) bool {
	in := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if onSegment(a, b, x, y) {
			return true
		}
		if (a.Y > y) == (b.Y > y) {
			continue
		}
		// Compare x against the edge's crossing point without dividing.
		lhs := (x - a.X) * (b.Y - a.Y)
		rhs := (y - a.Y) * (b.X - a.X)
		if b.Y > a.Y {
			if lhs < rhs {
				in = !in
			}
		} else if lhs > rhs {
			in = !in
		}
	}
	return in
}

func onSegment(a, b image.Point, x, y int) bool {
	if (b.X-a.X)*(y-a.Y) != (b.Y-a.Y)*(x-a.X) {
		return false
	}
	return x >= min(a.X, b.X) && x <= max(a.X, b.X) && y >= min(a.Y, b.Y) && y <= max(a.Y, b.Y)
}
