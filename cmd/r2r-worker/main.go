package main

import (
	"context"
	"errors"
	"os"
	"time"

	"r2r/internal/amqp"
	"r2r/internal/cli"
	"r2r/internal/gateway"
	"r2r/internal/gateway/gemini"
	"r2r/internal/services"
	"r2r/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting r2r-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the ingest worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Warn("Failed to close backend", "error", err)
		}
	}()
	archive, closeArchive := cli.InitReceipts(ctx, logger, cfg)
	defer closeArchive()

	var model gateway.Gateway = gateway.Unavailable{}
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:         cfg.GeminiAPIKey,
			Model:          cfg.GeminiModel,
			ReasoningModel: cfg.GeminiReasoningModel,
		})
		if err != nil {
			logger.Error("Failed to initialize Gemini gateway", "error", err)
			os.Exit(1)
		}
		model = client
	} else {
		logger.Warn("GEMINI_API_KEY not set, queued jobs will extract nothing")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ingest := services.NewIngestService(be.Store, gateway.NewDefaulting(model, cfg.GatewayTimeout, logger.Logger), archive, nil)
	ingestWorker := worker.NewIngestWorker(ingest, cfg.IngestMaxAttempts, 0)

	// Jobs submitted while the worker was down have no live message.
	logger.Info("Performing startup pending check...")
	if err := ingestWorker.StartupPendingCheck(ctx); err != nil {
		logger.Error("Failed startup pending check", "error", err)
	}

	go func() {
		if err := amqpClient.ConsumeIngestJobs(ctx, ingestWorker.HandleIngestMessage); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.PendingScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ingestWorker.ProcessPendingJobs(ctx); err != nil {
					logger.Error("Periodic pending scan failed", "error", err)
				}
			}
		}
	}()

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, cancel)
	select {
	case <-shutdownCtx.Done():
		<-done
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
	logger.Info("Worker stopped")
}
