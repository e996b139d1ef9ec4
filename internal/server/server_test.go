package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andresmejia3/uncanny/internal/filter"
	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/pipeline"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenDetector struct{}

func (brokenDetector) Detect(context.Context, image.Image) ([]landmarks.Set, error) {
	return nil, errors.New("engine offline")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, raster.Encode(&buf, raster.Filled(w, h, color.Gray{Y: 170}), "png"))
	return buf.Bytes()
}

func newServer(d filter.Detector) http.Handler {
	p := &pipeline.Pipeline{
		Detector: d,
		Cross:    filter.DefaultCrossOptions(),
		Splits:   100,
		Seed:     9,
		MinSide:  100,
		MaxSide:  3000,
	}
	return New(p, 1<<20, nil)
}

func TestPing(t *testing.T) {
	w := httptest.NewRecorder()
	newServer(landmarks.Static(nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestFilterRawBody(t *testing.T) {
	srv := newServer(landmarks.Static{landmarks.Synthetic(image.Point{}, 1)})
	req := httptest.NewRequest(http.MethodPost, "/api/filter", bytes.NewReader(pngBytes(t, 200, 200)))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "1", w.Header().Get(HeaderFaces))
	assert.Equal(t, "0", w.Header().Get(HeaderSkipped))
	assert.Equal(t, "false", w.Header().Get(HeaderGated))
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	out, format, err := raster.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Pt(200, 200), out.Bounds().Size())
}

func TestFilterMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "face.png")
	require.NoError(t, err)
	part.Write(pngBytes(t, 150, 150))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/filter", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	newServer(landmarks.Static(nil)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0", w.Header().Get(HeaderFaces))
}

func TestFilterGatedImage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/filter", bytes.NewReader(pngBytes(t, 32, 32)))
	w := httptest.NewRecorder()
	newServer(landmarks.Static(nil)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(HeaderGated))
}

func TestFilterErrors(t *testing.T) {
	tests := []struct {
		name     string
		detector filter.Detector
		body     []byte
		want     int
	}{
		{"empty body", landmarks.Static(nil), nil, http.StatusBadRequest},
		{"not an image", landmarks.Static(nil), []byte("hello"), http.StatusBadRequest},
		{"too large", landmarks.Static(nil), make([]byte, 2<<20), http.StatusRequestEntityTooLarge},
		{"detector failure", brokenDetector{}, nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if tt.want == http.StatusInternalServerError {
				body = pngBytes(t, 200, 200)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/filter", bytes.NewReader(body))
			w := httptest.NewRecorder()
			newServer(tt.detector).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			var res types.ErrorResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.NotEmpty(t, res.Error)
		})
	}
}
