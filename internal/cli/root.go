package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/opwatcher/internal/control"
	"github.com/vietddude/opwatcher/internal/core/config"
	"github.com/vietddude/opwatcher/internal/indexing/fetcher"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "opwatcher",
	Short: "Optimism L1 deposit indexer",
	Long:  `opwatcher ingests TransactionDeposited events from the OptimismPortal contract, derives the L2 deposit transaction hashes and keeps the deposit store consistent across L1 reorgs.`,
	Run:   runWatcher,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	return cfg
}

func runWatcher(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewWatcher(control.Config{
		Port:     cfg.Server.Port,
		L1:       cfg.L1,
		Database: cfg.Database,
		Redis:    cfg.Redis,
	})
	if err != nil {
		slog.Error("Failed to initialize opwatcher", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start opwatcher", "error", err)
		os.Exit(1)
	}

	slog.Info("opwatcher started", "config", cfgPath)

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	case err := <-app.Done():
		if err != nil {
			if errors.Is(err, fetcher.ErrFatal) {
				slog.Error("Fetcher stopped on a fatal error; operator intervention required", "error", err)
			} else {
				slog.Error("Fetcher stopped", "error", err)
			}
			exitCode = 1
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("opwatcher stopped gracefully")
	os.Exit(exitCode)
}
