package backend

import (
	"context"
	"time"

	"milkbook/internal/cache"
	"milkbook/internal/store"
)

// Backend is what every concrete store offers.
type Backend interface {
	store.Store
	store.Lister
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the store the engine should use and the raw backend
// underneath it.
type BackendResult struct {
	// Store is Backend wrapped in the local fallback cache when caching is
	// enabled, otherwise Backend itself.
	Store   store.Store
	Backend Backend
	Cleanup CleanupFunc

	// Cache is the fallback LRU, nil when caching is off.
	Cache cache.Cleaner
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory: seed directory
	DataDirectory string

	// File
	LedgerFile string

	// SQLite, with optional AMQP publishing
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Fallback cache; CacheSize 0 disables it.
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
