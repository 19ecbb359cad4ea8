package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"r2r/internal/amqp"
	"r2r/internal/auth"
	"r2r/internal/cache"
	"r2r/internal/cli"
	"r2r/internal/gateway"
	"r2r/internal/gateway/gemini"
	apphttp "r2r/internal/http"
	"r2r/internal/services"
	"r2r/internal/sheets"
	gsheet "r2r/internal/sheets/google"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	be := cli.InitBackend(ctx, logger, cfg)
	archive, closeArchive := cli.InitReceipts(ctx, logger, cfg)

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
		logger.Info("Gemini gateway ready", "model", cfg.GeminiModel, "reasoning_model", cfg.GeminiReasoningModel)
	} else {
		logger.Warn("GEMINI_API_KEY not set, extraction and insights return empty results")
	}
	defaulting := gateway.NewDefaulting(model, cfg.GatewayTimeout, logger.Logger)

	var publisher services.JobPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient = client
		publisher = client
		logger.Info("Ingest jobs will be queued", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	var exporter sheets.Exporter
	if cfg.SheetsEnabled() {
		tax, err := gsheet.NewTaxExporter(ctx, gsheet.Options{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleTaxSheetName,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets export", "error", err)
			os.Exit(1)
		}
		exporter = tax
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	st := be.Store

	txs := services.NewTransactionService(st, st)
	ingest := services.NewIngestService(st, defaulting, archive, publisher)
	analysis := services.NewAnalysisService(txs, st, st, defaulting, cfg.BillsCacheTTL)
	accounts := services.NewAccountService(st, tokens)
	chat := services.NewChatService(txs, defaulting, cfg.ChatSessionTTL)

	// Bill predictions depend on the household's transactions.
	txs.OnChange(analysis.InvalidateBills)
	ingest.OnChange(analysis.InvalidateBills)
	accounts.OnHouseholdChange(analysis.InvalidateBills)

	caches := cache.NewManager()
	if bills := analysis.BillsCache(); bills != nil {
		caches.Register(bills)
	}
	caches.Register(chat.Sessions())
	caches.StartCleanup(5 * time.Minute)

	checks := map[string]func(context.Context) error{}
	if p, ok := st.(pinger); ok {
		checks["store"] = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Tokens:             tokens,
		Accounts:           accounts,
		Transactions:       txs,
		Ingest:             ingest,
		Analysis:           analysis,
		Budgets:            services.NewBudgetService(st),
		Chat:               chat,
		Export:             services.NewExportService(txs, exporter),
		Checks:             checks,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		closeArchive()
		if err := be.Cleanup(); err != nil {
			logger.Warn("Failed to close backend", "error", err)
		}
	})

	logger.Info("Starting r2r server", "port", cfg.Port, "backend", cfg.DataBackend, "queued_ingest", cfg.AMQPEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
