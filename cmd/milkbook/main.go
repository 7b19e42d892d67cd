package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"milkbook/internal/backend"
	"milkbook/internal/cache"
	"milkbook/internal/catalog"
	"milkbook/internal/cli"
	apphttp "milkbook/internal/http"
	"milkbook/internal/ledger"
	applog "milkbook/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var janitor *cache.Janitor
	if res.Cache != nil {
		janitor = cache.NewJanitor(logger.WithComponent(applog.ComponentCache).Logger)
		janitor.Register(res.Cache)
		janitor.Start(10 * time.Minute)
	}

	cat, err := catalog.Load(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to load product catalog", applog.FieldError, err, "dir", cfg.DataDir)
		os.Exit(1)
	}

	engine := ledger.NewEngine(res.Store, ledger.Options{LookbackDays: cfg.CarryLookbackDays}, logger)
	srv := apphttp.NewServer(":"+cfg.Port, engine, cat, apphttp.Options{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if janitor != nil {
			janitor.Stop()
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting milkbook server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"carry_lookback_days", cfg.CarryLookbackDays,
		"products", len(cat.Products()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
