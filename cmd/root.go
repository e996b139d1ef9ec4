package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/uncanny/internal/config"
	"github.com/andresmejia3/uncanny/internal/logger"
	"github.com/andresmejia3/uncanny/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// DB is the run history, shared by subcommands. It stays nil unless --db or POSTGRES_HOST is set.
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	configPath string
	verbose    bool
	// cfg is the loaded preset with explicitly set flags applied on top
	cfg = config.Default()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "uncanny",
	Short:   "Surreal face distortion for photos and web pages",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if err := logger.Init(verbose || cfg.Logging.Development); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// If no flag was provided, try to build the connection string from the environment
		if dbURL == "" {
			if host := os.Getenv("POSTGRES_HOST"); host != "" {
				user := os.Getenv("POSTGRES_USER")
				pass := os.Getenv("POSTGRES_PASSWORD")
				name := os.Getenv("POSTGRES_DB")
				port := os.Getenv("POSTGRES_PORT")
				if port == "" {
					port = "5432"
				}
				dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
			}
		}
		if dbURL == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Log().Debug("run history enabled")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
		logger.Sync()
	},
}

// requireDB fails commands that only make sense with run history.
func requireDB() error {
	if DB == nil {
		return fmt.Errorf("no database configured: pass --db or set POSTGRES_HOST")
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Log().Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for run history (default: $POSTGRES_HOST based, disabled when unset)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML preset file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Development logging (console, debug level)")
}
