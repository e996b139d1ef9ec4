// Package glitch produces the block-distorted layer the filter darkens against.
package glitch

import (
	"container/heap"
	"image"
	"math/rand/v2"
)

// DefaultSplits is the number of cuts made on a typical photo.
const DefaultSplits = 10000

// BlockDistorter cuts an image into random axis-aligned blocks and paints each
// block with its mean colour. It is not safe for concurrent use.
type BlockDistorter struct {
	splits int
	rng    *rand.Rand
}

// New returns a distorter making up to splits cuts, seeded for reproducibility.
func New(splits int, seed uint64) *BlockDistorter {
	return &BlockDistorter{
		splits: max(splits, 0),
		rng:    rand.New(rand.NewPCG(seed, ^seed)),
	}
}

// Distort returns a new image of the same size as img.
func (b *BlockDistorter) Distort(img *image.NRGBA) *image.NRGBA {
	size := img.Rect.Size()
	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for _, block := range b.Blocks(size) {
		fillMean(out, img, block)
	}
	return out
}

// Blocks partitions a size.X by size.Y area. The largest block is always cut next,
// across its longer side at a random position.
func (b *BlockDistorter) Blocks(size image.Point) []image.Rectangle {
	whole := image.Rect(0, 0, size.X, size.Y)
	if whole.Empty() {
		return nil
	}

	q := &blockQueue{whole}
	for i := 0; i < b.splits; i++ {
		r := heap.Pop(q).(image.Rectangle)
		if r.Dx() < 2 && r.Dy() < 2 {
			heap.Push(q, r)
			break
		}
		first, second := b.cut(r)
		heap.Push(q, first)
		heap.Push(q, second)
	}
	return []image.Rectangle(*q)
}

func (b *BlockDistorter) cut(r image.Rectangle) (image.Rectangle, image.Rectangle) {
	if r.Dx() >= r.Dy() {
		at := r.Min.X + 1 + b.rng.IntN(r.Dx()-1)
		return image.Rect(r.Min.X, r.Min.Y, at, r.Max.Y), image.Rect(at, r.Min.Y, r.Max.X, r.Max.Y)
	}
	at := r.Min.Y + 1 + b.rng.IntN(r.Dy()-1)
	return image.Rect(r.Min.X, r.Min.Y, r.Max.X, at), image.Rect(r.Min.X, at, r.Max.X, r.Max.Y)
}

// fillMean paints block in dst with the mean colour of the same block in src.
func fillMean(dst, src *image.NRGBA, block image.Rectangle) {
	var r, g, bl, n uint64
	for y := block.Min.Y; y < block.Max.Y; y++ {
		off := src.PixOffset(src.Rect.Min.X+block.Min.X, src.Rect.Min.Y+y)
		for x := 0; x < block.Dx(); x++ {
			r += uint64(src.Pix[off])
			g += uint64(src.Pix[off+1])
			bl += uint64(src.Pix[off+2])
			off += 4
			n++
		}
	}
	if n == 0 {
		return
	}
	mr, mg, mb := uint8(r/n), uint8(g/n), uint8(bl/n)

	for y := block.Min.Y; y < block.Max.Y; y++ {
		off := dst.PixOffset(block.Min.X, y)
		for x := 0; x < block.Dx(); x++ {
			dst.Pix[off] = mr
			dst.Pix[off+1] = mg
			dst.Pix[off+2] = mb
			dst.Pix[off+3] = 255
			off += 4
		}
	}
}

// blockQueue is a max-heap of rectangles by area.
type blockQueue []image.Rectangle

func (q blockQueue) Len() int { return len(q) }

func (q blockQueue) Less(i, j int) bool {
	return area(q[i]) > area(q[j])
}

func (q blockQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *blockQueue) Push(x any) {
	*q = append(*q, x.(image.Rectangle))
}

func (q *blockQueue) Pop() any {
	old := *q
	last := len(old) - 1
	item := old[last]
	*q = old[:last]
	return item
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
