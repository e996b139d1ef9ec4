package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/uncanny/internal/logger"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/andresmejia3/uncanny/internal/watch"
	"github.com/spf13/cobra"
)

var watchOpts Options

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Filter images as they are dropped into a folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateBatchFlags(&watchOpts); err != nil {
			return err
		}
		if err := applyFlags(cmd, &watchOpts, &cfg); err != nil {
			return err
		}
		return runWatch(cmd.Context(), watchOpts)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchOpts.InputPath, "input", "i", "", "Folder to watch")
	watchCmd.Flags().StringVarP(&watchOpts.OutputDir, "output", "o", "output", "Directory for original_<n>.png and modified_<n>.png")
	watchCmd.Flags().BoolVarP(&watchOpts.KeepOriginal, "keep-original", "k", false, "Also save each decoded input as original_<n>.png")
	addFilterFlags(watchCmd, &watchOpts)

	watchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, opts Options) error {
	eng, err := newEngine(ctx, opts, cfg)
	if err != nil {
		utils.ShowError("Engine startup failed", err, nil)
		return err
	}
	defer eng.Close()
	pipe := newPipeline(eng, opts, cfg)

	w, err := watch.New(opts.InputPath, watch.DefaultSettle, logger.Log())
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", opts.InputPath, err)
	}
	fmt.Fprintf(os.Stderr, "👀 Watching directory: %s\n", opts.InputPath)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	index := 0
	for path := range w.Files {
		res := pipe.ProcessFile(ctx, types.ImageTask{Index: index, Path: path}, opts.OutputDir, opts.KeepOriginal)
		index++
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "⚠️ %s: %v\n", path, res.Err)
			continue
		}
		if imageID, err := utils.GenerateImageID(path); err == nil {
			pipe.Record(ctx, res, imageID)
		}
		printResult(res)
	}

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
