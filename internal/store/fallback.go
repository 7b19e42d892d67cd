package store

import (
	"context"
	"log/slog"

	"milkbook/internal/cache"
	"milkbook/internal/core"
)

// Fallback mirrors the last record read or written per date into a local
// cache and serves from it only when the backend read fails. The cache is
// never consulted while the backend answers.
type Fallback struct {
	inner  Store
	cache  cache.Cache[core.DayRecord]
	logger *slog.Logger
}

var _ Store = (*Fallback)(nil)

func NewFallback(inner Store, c cache.Cache[core.DayRecord], logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{inner: inner, cache: c, logger: logger}
}

func (f *Fallback) Get(ctx context.Context, date core.Date) (core.DayRecord, bool, error) {
	rec, ok, err := f.inner.Get(ctx, date)
	if err == nil {
		if ok {
			f.cache.Set(date.String(), rec.Clone())
		}
		return rec, ok, nil
	}

	cached, hit := f.cache.Get(date.String())
	if !hit {
		return core.DayRecord{}, false, err
	}
	f.logger.WarnContext(ctx, "Store read failed, serving cached record",
		"date", date.String(), "error", err)
	return cached.Clone(), true, nil
}

// Put caches the attempted record before writing through, so a failed
// write can still be inspected locally. The backend error is returned.
func (f *Fallback) Put(ctx context.Context, rec core.DayRecord) error {
	f.cache.Set(rec.Date.String(), rec.Clone())
	if err := f.inner.Put(ctx, rec); err != nil {
		f.logger.ErrorContext(ctx, "Store write failed, record kept in local cache only",
			"date", rec.Date.String(), "error", err)
		return err
	}
	return nil
}
