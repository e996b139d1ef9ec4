// Package pipeline runs the filter over whole images: size gate, seeding, output files and run history.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"os"
	"time"

	"github.com/andresmejia3/uncanny/internal/filter"
	"github.com/andresmejia3/uncanny/internal/glitch"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/store"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder persists finished runs. *store.Store implements it.
type Recorder interface {
	RecordRun(ctx context.Context, r store.Run) (uuid.UUID, error)
}

// Pipeline is safe for concurrent use as long as Detector and Recorder are: every call
// builds its own filter.
type Pipeline struct {
	Detector filter.Detector
	Cross    filter.CrossOptions
	Splits   int
	// Seed 0 draws a fresh seed per image.
	Seed    uint64
	MinSide int
	MaxSide int
	// Label draws the detected landmarks instead of filtering.
	Label    bool
	Recorder Recorder
	Logger   *zap.Logger
}

// Result is one filtered image.
type Result struct {
	Image  *image.NRGBA
	Report filter.Report
	Gated  bool
	Seed   uint64
}

func (p *Pipeline) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Filter runs the face filter on img. Images outside the size gate come back unchanged with Gated set.
func (p *Pipeline) Filter(ctx context.Context, img image.Image) (Result, error) {
	b := img.Bounds()
	if !utils.ShouldFilter(b.Dx(), b.Dy(), p.MinSide, p.MaxSide) {
		return Result{Image: raster.Opaque(img), Gated: true}, nil
	}

	if p.Label {
		faces, err := p.Detector.Detect(ctx, img)
		if err != nil {
			return Result{}, fmt.Errorf("landmark detection failed: %w", err)
		}
		out, err := filter.LabelLandmarks(img, faces)
		if err != nil {
			return Result{}, err
		}
		return Result{Image: out, Report: filter.Report{Faces: len(faces)}}, nil
	}

	seed := p.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	f := filter.New(p.Detector, glitch.New(p.Splits, seed),
		filter.WithLogger(p.log()),
		filter.WithCrossOptions(p.Cross),
		filter.WithSeed(seed),
	)
	out, report, err := f.Apply(ctx, img)
	if err != nil {
		return Result{}, err
	}
	return Result{Image: out, Report: report, Seed: seed}, nil
}

// Process filters one decoded image and writes modified_<n>.png, plus original_<n>.png when keepOriginal is set.
// Gated images are reported but nothing is written. Errors are returned inside the result.
func (p *Pipeline) Process(ctx context.Context, task types.ImageTask, img image.Image, outDir string, keepOriginal bool) types.ImageResult {
	start := time.Now()
	b := img.Bounds()
	res := types.ImageResult{Index: task.Index, Path: task.Path, Width: b.Dx(), Height: b.Dy()}

	out, err := p.Filter(ctx, img)
	if err != nil {
		res.Err = err
		return res
	}
	res.Faces = out.Report.Faces
	res.Skipped = out.Report.Skipped
	res.Gated = out.Gated
	if out.Gated {
		res.Duration = time.Since(start)
		return res
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		res.Err = fmt.Errorf("failed to create output directory: %w", err)
		return res
	}
	original, modified := utils.OutputNames(outDir, task.Index)
	if keepOriginal {
		if err := raster.Save(img, original); err != nil {
			res.Err = fmt.Errorf("failed to save original: %w", err)
			return res
		}
	}
	if err := raster.Save(out.Image, modified); err != nil {
		res.Err = fmt.Errorf("failed to save result: %w", err)
		return res
	}
	res.Output = modified
	res.Duration = time.Since(start)
	return res
}

// ProcessFile decodes the image at task.Path and runs Process on it.
func (p *Pipeline) ProcessFile(ctx context.Context, task types.ImageTask, outDir string, keepOriginal bool) types.ImageResult {
	img, err := raster.Open(task.Path)
	if err != nil {
		return types.ImageResult{Index: task.Index, Path: task.Path, Err: fmt.Errorf("failed to open image: %w", err)}
	}
	return p.Process(ctx, task, img, outDir, keepOriginal)
}

// Record stores a finished result when a Recorder is configured. Failed and gated results are not stored.
func (p *Pipeline) Record(ctx context.Context, res types.ImageResult, imageID string) {
	if p.Recorder == nil || res.Err != nil || res.Gated {
		return
	}
	id, err := p.Recorder.RecordRun(ctx, store.Run{
		Source:   res.Path,
		ImageID:  imageID,
		Width:    res.Width,
		Height:   res.Height,
		Faces:    res.Faces,
		Skipped:  res.Skipped,
		Output:   res.Output,
		Duration: res.Duration,
	})
	if err != nil {
		p.log().Warn("failed to record run", zap.String("source", res.Path), zap.Error(err))
		return
	}
	p.log().Debug("run recorded", zap.Stringer("id", id), zap.String("source", res.Path))
}
