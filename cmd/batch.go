package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/andresmejia3/uncanny/internal/pipeline"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/andresmejia3/uncanny/internal/worker"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var batchOpts Options

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Filter every image in a folder with parallel engines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateBatchFlags(&batchOpts); err != nil {
			return err
		}
		if err := applyFlags(cmd, &batchOpts, &cfg); err != nil {
			return err
		}
		return runBatch(cmd.Context(), batchOpts)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOpts.InputPath, "input", "i", "", "Folder of images")
	batchCmd.Flags().StringVarP(&batchOpts.OutputDir, "output", "o", "output", "Directory for original_<n>.png and modified_<n>.png")
	batchCmd.Flags().BoolVarP(&batchOpts.KeepOriginal, "keep-original", "k", false, "Also save each decoded input as original_<n>.png")
	addFilterFlags(batchCmd, &batchOpts)

	batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// validateBatchFlags ensures all CLI arguments are valid before starting heavy processes.
func validateBatchFlags(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input folder does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path %s is a file, expected a folder (use filter for single images)", opts.InputPath)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	return nil
}

// listImages returns the image files directly inside dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !utils.IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// batchSummary is what the aggregator reports once every result is in.
type batchSummary struct {
	Filtered int
	Gated    int
	Failed   int
	Faces    int
	Skipped  int
}

// runBatch orchestrates the folder run: engine pool, workers, aggregator and progress tracking.
func runBatch(ctx context.Context, opts Options) error {
	// Cancel workers and engines if we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths, err := listImages(opts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to list input folder: %w", err)
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "📂 No images found in %s\n", opts.InputPath)
		return nil
	}

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Worker Engines...\n", cfg.Detector.Engines)
	eng, err := newEngine(ctx, opts, cfg)
	if err != nil {
		utils.ShowError("Engine startup failed", err, nil)
		return err
	}
	defer eng.Close()
	pipe := newPipeline(eng, opts, cfg)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("🎭 Uncanny Filtering"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	start := time.Now()
	summary, err := processBatch(ctx, pipe, paths, cfg.Detector.Engines, opts, func(types.ImageResult) { bar.Add(1) })
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 BATCH SUMMARY\n")
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🖼️  Images filtered:        %d\n", summary.Filtered)
	fmt.Fprintf(os.Stderr, "⏭️  Outside the size gate:  %d\n", summary.Gated)
	fmt.Fprintf(os.Stderr, "⚠️  Failed:                 %d\n", summary.Failed)
	fmt.Fprintf(os.Stderr, "👁️  Faces edited:           %d (%d skipped)\n", summary.Faces-summary.Skipped, summary.Skipped)
	fmt.Fprintf(os.Stderr, "⏱️  Took:                   %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	return nil
}

// processBatch fans paths out to n workers and aggregates their results in one goroutine.
// A crashed Python engine aborts the batch; any other per-image failure is counted and skipped.
func processBatch(ctx context.Context, pipe *pipeline.Pipeline, paths []string, n int, opts Options, progress func(types.ImageResult)) (batchSummary, error) {
	taskChan := make(chan types.ImageTask, n)
	resultsChan := make(chan types.ImageResult, n*2)
	var wg sync.WaitGroup

	// Must run concurrently to prevent deadlock on resultsChan
	var summary batchSummary
	var fatal error
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for res := range resultsChan {
			progress(res)
			switch {
			case res.Err != nil:
				summary.Failed++
				if errors.Is(res.Err, worker.ErrWorkerDied) && fatal == nil {
					fatal = res.Err
				}
				fmt.Fprintf(os.Stderr, "\n⚠️ %s: %v\n", res.Path, res.Err)
				continue
			case res.Gated:
				summary.Gated++
				continue
			}
			summary.Filtered++
			summary.Faces += res.Faces
			summary.Skipped += res.Skipped

			imageID, err := utils.GenerateImageID(res.Path)
			if err != nil {
				imageID = res.Path
			}
			pipe.Record(ctx, res, imageID)
		}
	}()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				resultsChan <- pipe.ProcessFile(ctx, task, opts.OutputDir, opts.KeepOriginal)
			}
		}()
	}

feed:
	for i, path := range paths {
		select {
		case taskChan <- types.ImageTask{Index: i, Path: path}:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskChan)
	wg.Wait()
	close(resultsChan)

	// Wait for aggregator to finish processing
	<-aggDone

	if fatal != nil {
		utils.ShowError("Python engine crashed", fatal, worker.CrashLogs(fatal))
		return summary, fatal
	}
	return summary, ctx.Err()
}
