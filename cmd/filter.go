package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/andresmejia3/uncanny/internal/fetch"
	"github.com/andresmejia3/uncanny/internal/logger"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/andresmejia3/uncanny/internal/worker"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	filterOpts  Options
	filterURL   string
	filterIndex int
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter a single image from disk or a URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateFilterFlags(&filterOpts, filterURL); err != nil {
			return err
		}
		if err := applyFlags(cmd, &filterOpts, &cfg); err != nil {
			return err
		}
		return runFilter(cmd.Context(), filterOpts, filterURL, filterIndex)
	},
}

func init() {
	filterCmd.Flags().StringVarP(&filterOpts.InputPath, "input", "i", "", "Path to image")
	filterCmd.Flags().StringVarP(&filterURL, "url", "u", "", "Download the image from this URL or data: URI instead")
	filterCmd.Flags().StringVarP(&filterOpts.OutputDir, "output", "o", "output", "Directory for original_<n>.png and modified_<n>.png")
	filterCmd.Flags().IntVarP(&filterIndex, "index", "n", 0, "Number used in the output file names")
	filterCmd.Flags().BoolVarP(&filterOpts.KeepOriginal, "keep-original", "k", false, "Also save the decoded input as original_<n>.png")
	addFilterFlags(filterCmd, &filterOpts)

	rootCmd.AddCommand(filterCmd)
}

// validateFilterFlags ensures all CLI arguments are valid before starting heavy processes.
func validateFilterFlags(opts *Options, url string) error {
	if (opts.InputPath == "") == (url == "") {
		return fmt.Errorf("exactly one of --input or --url is required")
	}
	if opts.InputPath != "" {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("input file does not exist: %w", err)
			}
			return fmt.Errorf("unable to access input file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("input path %s is a directory, expected an image file (use batch for folders)", opts.InputPath)
		}
		if !utils.IsImageFile(opts.InputPath) {
			return fmt.Errorf("unsupported image type: %s", opts.InputPath)
		}
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	return nil
}

func runFilter(ctx context.Context, opts Options, url string, index int) error {
	img, source, imageID, err := loadSource(ctx, opts.InputPath, url)
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, opts, cfg)
	if err != nil {
		utils.ShowError("Engine startup failed", err, nil)
		return err
	}
	defer eng.Close()

	pipe := newPipeline(eng, opts, cfg)
	res := pipe.Process(ctx, types.ImageTask{Index: index, Path: source}, img, opts.OutputDir, opts.KeepOriginal)
	if res.Err != nil {
		if errors.Is(res.Err, worker.ErrWorkerDied) {
			utils.ShowError("Python engine crashed", res.Err, worker.CrashLogs(res.Err))
		}
		return res.Err
	}
	pipe.Record(ctx, res, imageID)

	printResult(res)
	return nil
}

// loadSource decodes the image behind a path or URL and returns a stable ID for it.
func loadSource(ctx context.Context, path, url string) (image.Image, string, string, error) {
	if path != "" {
		img, err := raster.Open(path)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to open image: %w", err)
		}
		id, err := utils.GenerateImageID(path)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to generate image ID: %w", err)
		}
		return img, path, id, nil
	}

	data, err := fetch.New(cfg.Fetch.UserAgent, cfg.Fetch.Timeout, logger.Log()).Fetch(ctx, url)
	if err != nil {
		return nil, "", "", err
	}
	img, _, err := raster.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to open image: %w", err)
	}
	source := url
	if len(source) > 64 {
		source = source[:64] + "..."
	}
	return img, source, utils.ContentID(data), nil
}

func printResult(res types.ImageResult) {
	if res.Gated {
		fmt.Fprintf(os.Stderr, "⏭️  %s (%dx%d) is too small or too large, skipping filter\n", res.Path, res.Width, res.Height)
		return
	}
	fmt.Fprintf(os.Stderr, "🎭 %s: %d face(s), %d skipped -> %s (%s)\n",
		res.Path, res.Faces, res.Skipped, res.Output, res.Duration.Round(time.Millisecond))
}
