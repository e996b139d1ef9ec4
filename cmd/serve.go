package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/andresmejia3/uncanny/internal/logger"
	"github.com/andresmejia3/uncanny/internal/server"
	"github.com/andresmejia3/uncanny/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveOpts Options
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the filter over HTTP (POST /api/filter)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyFlags(cmd, &serveOpts, &cfg); err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		return runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8080", "Listen address")
	addFilterFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, opts Options) error {
	eng, err := newEngine(ctx, opts, cfg)
	if err != nil {
		utils.ShowError("Engine startup failed", err, nil)
		return err
	}
	defer eng.Close()

	router := server.New(newPipeline(eng, opts, cfg), int64(cfg.Server.MaxBodyMB)<<20, logger.Log())
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "🌐 Listening on %s\n", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, "\n🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Warn("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
