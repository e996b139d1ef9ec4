// Package rewrite edits saved HTML pages: inline images are run through the filter
// and ordinary words are swapped for darker ones.
package rewrite

import (
	"bytes"
	"context"
	"image"
	"io"
	"strings"

	"github.com/andresmejia3/uncanny/internal/fetch"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ImageFunc filters one decoded image.
type ImageFunc func(ctx context.Context, img image.Image) (image.Image, error)

// Stats counts what a rewrite touched.
type Stats struct {
	Images   int // inline png/jpeg images seen
	Filtered int
	Gated    int // left alone by the size gate
	Failed   int
	Words    int // words replaced by the mangler
}

// Images rewrites inline data: images in an HTML document.
type Images struct {
	Filter  ImageFunc
	MinSide int
	MaxSide int
	Logger  *zap.Logger
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

// Render writes doc back out.
func Render(w io.Writer, doc *html.Node) error {
	return html.Render(w, doc)
}

// Rewrite replaces the src of every <img> holding a png or jpeg data URI with the filtered image,
// encoded in the same format. Broken images are logged and left as they were.
func (r *Images) Rewrite(ctx context.Context, doc *html.Node) (Stats, error) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var stats Stats
	var walkErr error
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Img {
			return true
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return false
		}
		for i, attr := range n.Attr {
			if attr.Key != "src" || !strings.HasPrefix(attr.Val, "data:image") {
				continue
			}
			src, ok, err := r.rewriteSrc(ctx, attr.Val, &stats)
			if err != nil {
				stats.Failed++
				log.Warn("failed to rewrite image", zap.Error(err))
				continue
			}
			if ok {
				n.Attr[i].Val = src
			}
		}
		return true
	})
	return stats, walkErr
}

func (r *Images) rewriteSrc(ctx context.Context, src string, stats *Stats) (string, bool, error) {
	mediaType, data, err := fetch.ParseDataURI(src)
	if err != nil {
		return "", false, err
	}
	format := strings.TrimPrefix(mediaType, "image/")
	if format != "png" && format != "jpg" && format != "jpeg" {
		return "", false, nil
	}
	stats.Images++

	img, _, err := raster.Decode(bytes.NewReader(data))
	if err != nil {
		return "", false, err
	}
	b := img.Bounds()
	if !utils.ShouldFilter(b.Dx(), b.Dy(), r.MinSide, r.MaxSide) {
		stats.Gated++
		return "", false, nil
	}

	out, err := r.Filter(ctx, img)
	if err != nil {
		return "", false, err
	}
	var buf bytes.Buffer
	if err := raster.Encode(&buf, out, format); err != nil {
		return "", false, err
	}
	stats.Filtered++
	return fetch.DataURI(mediaType, buf.Bytes()), true, nil
}

// walk visits n and its descendants depth first. Returning false from fn stops the walk.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
