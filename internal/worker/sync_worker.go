// Package worker mirrors day records from the local SQLite store into a
// second backend (Google Sheets in production).
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"milkbook/internal/amqp"
	"milkbook/internal/core"
	"milkbook/internal/storage"
	"milkbook/internal/store"
)

// Source is the local store with its sync bookkeeping.
type Source interface {
	GetVersioned(ctx context.Context, date core.Date) (core.DayRecord, int64, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, date core.Date, version int64) (bool, error)
	MarkSyncError(ctx context.Context, date core.Date) error
}

var _ Source = (*storage.SQLiteRepository)(nil)

type SyncWorker struct {
	source    Source
	target    store.Writer
	batchSize int
}

func NewSyncWorker(source Source, target store.Writer, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{source: source, target: target, batchSize: batchSize}
}

// HandleDaySaved mirrors the day named by msg. The current record is
// always copied, so an out-of-date message still converges on the latest
// state.
func (w *SyncWorker) HandleDaySaved(ctx context.Context, msg *amqp.DaySavedMessage) error {
	date, err := core.ParseDate(msg.Date)
	if err != nil {
		// Requeueing cannot fix a bad date.
		slog.ErrorContext(ctx, "Dropping day saved message with bad date", "date", msg.Date, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Processing day saved message",
		"date", msg.Date,
		"version", msg.Version)

	return w.syncDay(ctx, date)
}

// ProcessPending mirrors days that are still pending or failed earlier.
// It is the fallback for lost or unpublished messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processBatch(ctx, w.batchSize)
	return err
}

// StartupSyncCheck sweeps a larger batch once when the worker starts.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	return nil
}

func (w *SyncWorker) processBatch(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.source.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending days: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending days", "count", len(pending))
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.syncDay(ctx, p.Date); err != nil {
			slog.ErrorContext(ctx, "Failed to sync day", "date", p.Date.String(), "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncDay(ctx context.Context, date core.Date) error {
	rec, version, err := w.source.GetVersioned(ctx, date)
	if errors.Is(err, sql.ErrNoRows) {
		slog.WarnContext(ctx, "Day vanished before sync", "date", date.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("get day from storage: %w", err)
	}

	if err := w.target.Put(ctx, rec); err != nil {
		if markErr := w.source.MarkSyncError(ctx, date); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "date", date.String(), "error", markErr)
		}
		return fmt.Errorf("mirror day %s: %w", date, err)
	}

	marked, err := w.source.MarkSynced(ctx, date, version)
	if err != nil {
		// The mirror write worked; the next sweep will just redo it.
		slog.ErrorContext(ctx, "Failed to mark as synced", "date", date.String(), "error", err)
		return nil
	}
	if !marked {
		slog.InfoContext(ctx, "Day changed during sync, leaving it pending",
			"date", date.String(), "version", version)
		return nil
	}

	slog.InfoContext(ctx, "Successfully synced day",
		"date", date.String(),
		"version", version,
		"items", len(rec.Items))
	return nil
}
