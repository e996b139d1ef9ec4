package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/uncanny/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent filter runs from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := requireDB(); err != nil {
			return err
		}
		return runHistory(cmd.Context(), os.Stdout)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, out io.Writer) error {
	runs, err := DB.ListRuns(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tSIZE\tFACES\tSKIPPED\tTOOK\tCREATED")
	fmt.Fprintln(w, "--\t------\t----\t-----\t-------\t----\t-------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%d\t%s\t%s\n",
			r.ID.String()[:8], r.Source, r.Width, r.Height, r.Faces, r.Skipped,
			r.Duration.Round(time.Millisecond), r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
