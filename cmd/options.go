package cmd

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/andresmejia3/uncanny/internal/config"
	"github.com/andresmejia3/uncanny/internal/filter"
	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/logger"
	"github.com/andresmejia3/uncanny/internal/pipeline"
	"github.com/andresmejia3/uncanny/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options holds the filter settings shared by filter, batch, rewrite, serve and watch
type Options struct {
	InputPath     string
	OutputDir     string
	Landmarks     string
	NumEngines    int
	WorkerTimeout string
	Seed          uint64
	Splits        int
	LineCount     int
	JitterRatio   float64
	Alpha         float64
	KeepOriginal  bool
	Label         bool
	NoGate        bool
}

// addFilterFlags registers the filter flags. Defaults mirror config.Default; a flag only
// overrides the preset file when it is set explicitly.
func addFilterFlags(cmd *cobra.Command, opts *Options) {
	d := config.Default()
	f := cmd.Flags()
	f.StringVar(&opts.Landmarks, "landmarks", "", "JSON file with fixed landmarks (skips the Python engine)")
	f.IntVarP(&opts.NumEngines, "engines", "e", d.Detector.Engines, "Number of parallel engine workers")
	f.StringVar(&opts.WorkerTimeout, "worker-timeout", d.Detector.ReadTimeout.String(), "Timeout for a worker to process a single image")
	f.Uint64Var(&opts.Seed, "seed", d.Filter.Seed, "Random seed for jitter and glitch (0 picks a fresh one per image)")
	f.IntVar(&opts.Splits, "splits", d.Filter.Splits, "Number of glitch block splits")
	f.IntVar(&opts.LineCount, "lines", d.Filter.LineCount, "Jittered strokes per mouth cross")
	f.Float64Var(&opts.JitterRatio, "jitter", d.Filter.JitterRatio, "Stroke overshoot and random offset as a fraction of the stroke's x/y span")
	f.Float64Var(&opts.Alpha, "alpha", d.Filter.Alpha, "Blend the mouth cross at this opacity (0 draws it opaque)")
	f.BoolVar(&opts.Label, "label", false, "Draw detected landmarks instead of filtering")
	f.BoolVar(&opts.NoGate, "no-gate", false, "Filter images of any size")
}

// applyFlags lays explicitly set flags over the loaded preset.
func applyFlags(cmd *cobra.Command, opts *Options, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("engines") {
		c.Detector.Engines = opts.NumEngines
	}
	if f.Changed("worker-timeout") {
		d, err := time.ParseDuration(opts.WorkerTimeout)
		if err != nil {
			return fmt.Errorf("invalid worker-timeout format (use '30s', '1m'): %w", err)
		}
		c.Detector.ReadTimeout = d
	}
	if f.Changed("seed") {
		c.Filter.Seed = opts.Seed
	}
	if f.Changed("splits") {
		c.Filter.Splits = opts.Splits
	}
	if f.Changed("lines") {
		c.Filter.LineCount = opts.LineCount
	}
	if f.Changed("jitter") {
		c.Filter.JitterRatio = opts.JitterRatio
	}
	if f.Changed("alpha") {
		c.Filter.Alpha = opts.Alpha
	}
	if opts.NoGate {
		c.Filter.MinSide, c.Filter.MaxSide = 0, math.MaxInt
	}
	return c.Validate()
}

// engine is the detector behind a pipeline plus its cleanup.
type engine interface {
	filter.Detector
	Close()
}

type staticEngine struct{ landmarks.Static }

func (staticEngine) Close() {}

// newEngine loads fixed landmarks when given, otherwise it starts the Python engine pool.
func newEngine(ctx context.Context, opts Options, c config.Config) (engine, error) {
	if opts.Landmarks != "" {
		faces, err := landmarks.Load(opts.Landmarks)
		if err != nil {
			return nil, err
		}
		return staticEngine{faces}, nil
	}
	return worker.NewPool(ctx, c.Detector.Engines, worker.Config{
		Python:      c.Detector.Python,
		Script:      c.Detector.Script,
		ReadTimeout: c.Detector.ReadTimeout,
	}, logger.Log())
}

// newPipeline wires the detector, the preset and the run history together.
func newPipeline(d filter.Detector, opts Options, c config.Config) *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Detector: d,
		Cross:    c.Filter.CrossOptions(),
		Splits:   c.Filter.Splits,
		Seed:     c.Filter.Seed,
		MinSide:  c.Filter.MinSide,
		MaxSide:  c.Filter.MaxSide,
		Label:    opts.Label,
		Logger:   logger.Log(),
	}
	if DB != nil {
		p.Recorder = DB
	}
	if p.Seed != 0 && opts.Landmarks == "" {
		logger.Log().Info("multi-face results are reproducible only if the detector orders faces deterministically",
			zap.Uint64("seed", p.Seed))
	}
	return p
}
