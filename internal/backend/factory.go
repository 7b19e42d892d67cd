package backend

import (
	"context"
	"fmt"
	"log/slog"

	"milkbook/internal/amqp"
	"milkbook/internal/cache"
	"milkbook/internal/core"
	"milkbook/internal/services"
	"milkbook/internal/storage"
	"milkbook/internal/store"
	"milkbook/internal/store/file"
	"milkbook/internal/store/memory"
	"milkbook/internal/store/sheets"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend builds the configured store and, when CacheSize > 0, puts
// the local fallback cache in front of it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b       Backend
		cleanup CleanupFunc
		err     error
	)
	switch config.Type {
	case MemoryBackend:
		b, err = f.createMemoryBackend(config)
	case FileBackend:
		b, err = f.createFileBackend(config)
	case SQLiteBackend:
		b, cleanup, err = f.createSQLiteBackend(config)
	case SheetsBackend:
		b, err = f.createSheetsBackend(ctx, config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: b, Backend: b, Cleanup: cleanup}
	if config.CacheSize > 0 {
		lru := cache.NewLRU[core.DayRecord](config.CacheSize, config.CacheTTL)
		result.Store = store.NewFallback(b, lru, f.logger)
		result.Cache = lru
		f.logger.Info("Local fallback cache enabled", "size", config.CacheSize, "ttl", config.CacheTTL)
	}
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (Backend, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	s, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	return s, nil
}

func (f *DefaultFactory) createFileBackend(config Config) (Backend, error) {
	s, err := file.New(config.LedgerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file backend: %w", err)
	}
	f.logger.Info("Initialized file backend", "path", s.Path())
	return s, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (Backend, CleanupFunc, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; without it the worker's pending sweep still syncs.
	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync messages", "error", err)
		} else {
			publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	s := services.NewSyncingStore(repo, publisher)
	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)
	return s, s.Close, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (Backend, error) {
	cli, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
	return cli, nil
}
