// Package filter implements the surreal face filter: every detected face gets one
// oversized composite eye under a dark vignette and a scribbled cross over the mouth,
// and the whole picture is darkened against a block-distorted copy of itself.
package filter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/raster"
	"go.uber.org/zap"
)

// Detector finds facial landmarks. Faces are processed in the order returned.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]landmarks.Set, error)
}

// Distorter produces the glitched copy the final image is blended against.
type Distorter interface {
	Distort(img *image.NRGBA) *image.NRGBA
}

// Report summarises one Apply call.
type Report struct {
	Faces    int
	Filtered int
	Skipped  int
	Errors   []error
}

// Filter is not safe for concurrent use: it owns its random source.
type Filter struct {
	detector  Detector
	distorter Distorter
	logger    *zap.Logger
	cross     CrossOptions
	rng       *rand.Rand
	edit      func(*image.NRGBA, landmarks.Set) (*image.NRGBA, error)
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets the logger used for per-face warnings.
func WithLogger(l *zap.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithCrossOptions overrides the mouth cross settings.
func WithCrossOptions(o CrossOptions) Option {
	return func(f *Filter) { f.cross = o }
}

// WithRand injects the random source behind the mouth jitter.
func WithRand(r *rand.Rand) Option {
	return func(f *Filter) {
		if r != nil {
			f.rng = r
		}
	}
}

// WithSeed makes the mouth jitter reproducible.
func WithSeed(seed uint64) Option {
	return WithRand(NewRand(seed))
}

// NewRand returns the generator WithSeed uses.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// New builds a Filter. A nil distorter leaves the glitch layer equal to the input.
func New(detector Detector, distorter Distorter, opts ...Option) *Filter {
	f := &Filter{
		detector:  detector,
		distorter: distorter,
		logger:    zap.NewNop(),
		cross:     DefaultCrossOptions(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	f.edit = f.editFace
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply runs the whole filter on img. The input is never modified and the output has the same size.
// Faces that cannot be edited are skipped and listed in the report.
func (f *Filter) Apply(ctx context.Context, img image.Image) (*image.NRGBA, Report, error) {
	work := raster.Opaque(img)

	glitched := work
	if f.distorter != nil {
		glitched = f.distorter.Distort(work)
	}

	faces, err := f.detector.Detect(ctx, work)
	if err != nil {
		return nil, Report{}, fmt.Errorf("landmark detection failed: %w", err)
	}

	edited, report := f.EditFaces(work, faces)
	return Compose(edited, glitched), report, nil
}

// EditFaces applies the eye and mouth edits for each face in turn, all on one working image.
// A face that fails leaves the image as the previous face left it; the rest still run.
func (f *Filter) EditFaces(work *image.NRGBA, faces []landmarks.Set) (*image.NRGBA, Report) {
	report := Report{Faces: len(faces)}

	for i, face := range faces {
		next, err := f.edit(work, face)
		if err != nil {
			if errors.Is(err, landmarks.ErrMalformed) {
				f.logger.Warn("skipping face", zap.Int("face", i), zap.Error(err))
			} else {
				f.logger.Error("face edit failed", zap.Int("face", i), zap.Error(err))
			}
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Errorf("face %d: %w", i, err))
			continue
		}
		work = next
		report.Filtered++
	}
	return work, report
}

func (f *Filter) editFace(work *image.NRGBA, face landmarks.Set) (*image.NRGBA, error) {
	// A face is only edited once every region it needs has parsed
	left, right, err := face.Eyes()
	if err != nil {
		return nil, err
	}
	mouth, err := face.Mouth()
	if err != nil {
		return nil, err
	}

	eye := ComposeEye(work, left, right)
	work, placed, err := ApplyVignette(work, eye)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("eye placed",
		zap.Stringer("anchor", eye.Anchor),
		zap.Stringer("rect", placed),
	)

	return DrawMouthCross(work, mouth, f.cross, f.rng)
}

// Compose overlays the glitched layer on the face image, then keeps whichever is darker.
// The result is never brighter than face on any channel.
func Compose(face, glitched *image.NRGBA) *image.NRGBA {
	return raster.Darker(raster.Overlay(glitched, face), face)
}
