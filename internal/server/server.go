// Package server exposes the filter over HTTP.
package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/uncanny/internal/pipeline"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response headers set by POST /api/filter.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderFaces     = "X-Uncanny-Faces"
	HeaderSkipped   = "X-Uncanny-Skipped"
	HeaderGated     = "X-Uncanny-Gated"
)

const requestIDKey = "request_id"

type handler struct {
	pipe    *pipeline.Pipeline
	maxBody int64
	log     *zap.Logger
}

// New builds the router. maxBody caps the upload size in bytes.
func New(p *pipeline.Pipeline, maxBody int64, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	h := &handler{pipe: p, maxBody: maxBody, log: log}
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog())

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/api/filter", h.filter)
	return r
}

func (h *handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		start := time.Now()

		c.Next()

		h.log.Info("request",
			zap.String("id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (h *handler) filter(c *gin.Context) {
	data, err := h.readImage(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResult{Error: "image too large"})
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorResult{Error: err.Error()})
		return
	}

	img, _, err := raster.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResult{Error: err.Error()})
		return
	}

	res, err := h.pipe.Filter(c.Request.Context(), img)
	if err != nil {
		h.log.Error("filter failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.ErrorResult{Error: err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := raster.Encode(&buf, res.Image, "png"); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResult{Error: err.Error()})
		return
	}

	b := img.Bounds()
	h.pipe.Record(c.Request.Context(), types.ImageResult{
		Path:    "http:" + c.GetString(requestIDKey),
		Width:   b.Dx(),
		Height:  b.Dy(),
		Faces:   res.Report.Faces,
		Skipped: res.Report.Skipped,
		Gated:   res.Gated,
	}, utils.ContentID(data))

	c.Header(HeaderFaces, strconv.Itoa(res.Report.Faces))
	c.Header(HeaderSkipped, strconv.Itoa(res.Report.Skipped))
	c.Header(HeaderGated, strconv.FormatBool(res.Gated))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// readImage accepts either a multipart upload in the "image" field or a raw request body.
func (h *handler) readImage(c *gin.Context) ([]byte, error) {
	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("image")
		if err != nil {
			return nil, err
		}
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}
