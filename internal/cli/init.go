// Package cli provides common CLI initialization utilities shared by
// cmd/r2r and cmd/r2r-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"r2r/internal/backend"
	"r2r/internal/config"
	applog "r2r/internal/log"
	"r2r/internal/receipts"
)

// SetupLogger initializes structured logging from LOG_LEVEL and LOG_JSON.
// Returns the configured logger and sets it as the default logger.
func SetupLogger() *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentApp,
		JSON:      os.Getenv("LOG_JSON") == "true",
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured record store.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// InitReceipts opens the receipt archive: the GCS bucket when configured,
// the local directory otherwise. The returned cleanup is never nil.
func InitReceipts(ctx context.Context, logger *applog.Logger, cfg *config.Config) (receipts.Store, func()) {
	if cfg.ReceiptsBucket != "" {
		store, err := receipts.NewGCSStore(ctx, cfg.ReceiptsBucket)
		if err != nil {
			logger.Error("Failed to initialize receipt bucket", "error", err, "bucket", cfg.ReceiptsBucket)
			os.Exit(1)
		}
		logger.Info("Receipt archive ready", "bucket", cfg.ReceiptsBucket)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close receipt bucket client", "error", err)
			}
		}
	}

	store, err := receipts.NewDirStore(cfg.ReceiptsDir)
	if err != nil {
		logger.Error("Failed to initialize receipt directory", "error", err, "dir", cfg.ReceiptsDir)
		os.Exit(1)
	}
	logger.Info("Receipt archive ready", "dir", cfg.ReceiptsDir)
	return store, func() {}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
