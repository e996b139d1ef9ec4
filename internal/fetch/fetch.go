// Package fetch downloads source images for the filter.
package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUnsupported is returned for sources the filter cannot decode, such as SVG.
var ErrUnsupported = errors.New("unsupported image source")

// Fetcher resolves http(s) URLs and data: URIs into raw image bytes.
type Fetcher struct {
	client *resty.Client
	log    *zap.Logger
}

// New builds a Fetcher that sends userAgent with every request and gives up after timeout.
func New(userAgent string, timeout time.Duration, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)
	return &Fetcher{client: client, log: log}
}

// Fetch returns the bytes behind src.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:") {
		mediaType, data, err := ParseDataURI(src)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(mediaType, "image/svg") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, mediaType)
		}
		return data, nil
	}

	target, err := Clean(src)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(target), ".svg") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, target)
	}

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", target, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to download %s: status %s", target, resp.Status())
	}

	f.log.Debug("fetched image",
		zap.String("url", target),
		zap.Int("bytes", len(resp.Body())),
		zap.Duration("took", time.Since(start)))
	return resp.Body(), nil
}

// Clean drops the query string and fragment from an http(s) URL.
func Clean(src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid image url %q: %w", src, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}
	return u.Scheme + "://" + u.Host + u.Path, nil
}

// ParseDataURI splits data:<type>;base64,<payload> into its media type and decoded bytes.
func ParseDataURI(src string) (mediaType string, data []byte, err error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return "", nil, errors.New("data uri has no payload")
	}
	params := strings.Split(header, ";")
	mediaType = strings.ToLower(params[0])

	base64Encoded := false
	for _, p := range params[1:] {
		if p == "base64" {
			base64Encoded = true
		}
	}
	if !base64Encoded {
		return mediaType, nil, fmt.Errorf("%w: data uri is not base64", ErrUnsupported)
	}

	data, err = base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return mediaType, nil, fmt.Errorf("failed to decode data uri: %w", err)
	}
	return mediaType, data, nil
}

// DataURI encodes data as a base64 data: URI.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
