package cmd

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/andresmejia3/uncanny/internal/logger"
	"github.com/andresmejia3/uncanny/internal/rewrite"
	"github.com/spf13/cobra"
)

var (
	rewriteOpts   Options
	rewriteOutput string
	rewriteWords  string
	rewriteMangle bool
	rewriteFreq   float64
	rewriteNoImgs bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Filter the inline images of a saved HTML page and darken its words",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateRewriteFlags(&rewriteOpts); err != nil {
			return err
		}
		if err := applyFlags(cmd, &rewriteOpts, &cfg); err != nil {
			return err
		}
		return runRewrite(cmd.Context(), rewriteOpts)
	},
}

func init() {
	rewriteCmd.Flags().StringVarP(&rewriteOpts.InputPath, "input", "i", "", "Path to HTML file")
	rewriteCmd.Flags().StringVarP(&rewriteOutput, "output", "o", "", "Path for the rewritten HTML (default: modified_<input>)")
	rewriteCmd.Flags().BoolVar(&rewriteMangle, "mangle-text", false, "Replace common words with darker ones")
	rewriteCmd.Flags().StringVar(&rewriteWords, "words", "wordlists", "Folder holding the word lists")
	rewriteCmd.Flags().Float64Var(&rewriteFreq, "frequency", rewrite.DefaultFrequency, "Chance that an eligible word is replaced")
	rewriteCmd.Flags().BoolVar(&rewriteNoImgs, "skip-images", false, "Leave images alone")
	addFilterFlags(rewriteCmd, &rewriteOpts)

	rewriteCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(rewriteCmd)
}

func validateRewriteFlags(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected an HTML file", opts.InputPath)
	}
	if rewriteFreq < 0 || rewriteFreq > 1 {
		return fmt.Errorf("frequency must be between 0.0 and 1.0, got %f", rewriteFreq)
	}
	if !rewriteMangle && rewriteNoImgs {
		return fmt.Errorf("nothing to do: --skip-images without --mangle-text")
	}
	if rewriteOutput == "" {
		rewriteOutput = defaultRewriteOutput(opts.InputPath)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	return nil
}

func defaultRewriteOutput(path string) string {
	dir, file := filepath.Split(path)
	return filepath.Join(dir, "modified_"+file)
}

func runRewrite(ctx context.Context, opts Options) error {
	in, err := os.Open(opts.InputPath)
	if err != nil {
		return err
	}
	doc, err := rewrite.Parse(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", opts.InputPath, err)
	}

	// Text first, then images
	if rewriteMangle {
		words, err := rewrite.LoadWords(rewriteWords)
		if err != nil {
			return err
		}
		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		if cfg.Filter.Seed != 0 {
			rng = rand.New(rand.NewPCG(cfg.Filter.Seed, cfg.Filter.Seed))
		}
		n := rewrite.NewMangler(words, rewriteFreq, rng).Document(doc)
		fmt.Fprintf(os.Stderr, "🖋️  Replaced %d words\n", n)
	}

	if !rewriteNoImgs {
		eng, err := newEngine(ctx, opts, cfg)
		if err != nil {
			return err
		}
		defer eng.Close()
		pipe := newPipeline(eng, opts, cfg)

		images := &rewrite.Images{
			Filter: func(ctx context.Context, img image.Image) (image.Image, error) {
				res, err := pipe.Filter(ctx, img)
				if err != nil {
					return nil, err
				}
				return res.Image, nil
			},
			MinSide: cfg.Filter.MinSide,
			MaxSide: cfg.Filter.MaxSide,
			Logger:  logger.Log(),
		}
		stats, err := images.Rewrite(ctx, doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "🎭 Inline images: %d filtered, %d outside the size gate, %d failed (of %d)\n",
			stats.Filtered, stats.Gated, stats.Failed, stats.Images)
	}

	out, err := os.Create(rewriteOutput)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if err := rewrite.Render(w, doc); err != nil {
		out.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "💾 Saved %s\n", rewriteOutput)
	return nil
}
