package cli

import (
	"context"
	"fmt"

	"milkbook/internal/backend"
	"milkbook/internal/catalog"
	"milkbook/internal/config"
	"milkbook/internal/ledger"
	applog "milkbook/internal/log"
	"milkbook/internal/store"
)

// Session is an opened ledger for one command run.
type Session struct {
	Ledger  *ledger.Engine
	Store   store.Store
	Catalog *catalog.Catalog
	Close   func() error
}

// Opener opens the ledger selected by the root flags.
type Opener func(ctx context.Context, opts *RootOptions) (*Session, error)

// OpenFromEnv reads configuration from the environment, lets the root
// flags override the backend, and builds the same stack the server uses.
func OpenFromEnv(ctx context.Context, opts *RootOptions) (*Session, error) {
	cfg := config.Load()
	if opts.Backend != "" {
		cfg.DataBackend = opts.Backend
	}
	if opts.LedgerFile != "" {
		cfg.LedgerFile = opts.LedgerFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentCLI,
		Output:    opts.logOutput(),
	})

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}

	cat, err := catalog.Load(cfg.DataDir)
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	engine := ledger.NewEngine(res.Store, ledger.Options{LookbackDays: cfg.CarryLookbackDays}, logger)
	return &Session{Ledger: engine, Store: res.Store, Catalog: cat, Close: res.Close}, nil
}
