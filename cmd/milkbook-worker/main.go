package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"milkbook/internal/amqp"
	"milkbook/internal/cli"
	"milkbook/internal/config"
	applog "milkbook/internal/log"
	"milkbook/internal/services"
	"milkbook/internal/store/sheets"
	"milkbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting milkbook-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(repo, target, cfg.SyncBatchSize)
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Warn("Startup sync check failed", applog.FieldError, err)
	}

	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{PollInterval: cfg.SyncInterval})
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The periodic sweep still converges without messages.
			logger.Warn("Failed to initialize AMQP client, relying on periodic sweep", applog.FieldError, err)
		} else {
			defer client.Close()
			g.Go(func() error {
				return client.ConsumeDaySaved(gctx, syncWorker.HandleDaySaved)
			})
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic sweep", "interval", cfg.SyncInterval)
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("Worker running", "batch_size", cfg.SyncBatchSize, "interval", cfg.SyncInterval)
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		logger.Warn("Sync processor did not stop cleanly", applog.FieldError, err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, runErr)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
