// Package services composes the local SQLite store with the message bus so
// every saved day is announced for mirroring.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"milkbook/internal/core"
	"milkbook/internal/store"
)

type (
	// VersionedStore is the local store: Put reports the new version so
	// the sync message can name it.
	VersionedStore interface {
		store.Reader
		store.Lister
		PutVersioned(ctx context.Context, rec core.DayRecord) (int64, error)
	}

	Publisher interface {
		PublishDaySaved(ctx context.Context, date string, version int64) error
	}
)

// SyncingStore saves days locally and publishes a day-saved message for
// each write. A failed publish is logged only; the pending sweep in the
// worker picks the day up later.
type SyncingStore struct {
	local     VersionedStore
	publisher Publisher
}

var (
	_ store.Store  = (*SyncingStore)(nil)
	_ store.Lister = (*SyncingStore)(nil)
)

// NewSyncingStore wires local storage and an optional publisher. A nil
// publisher means no messages are sent.
func NewSyncingStore(local VersionedStore, publisher Publisher) *SyncingStore {
	return &SyncingStore{local: local, publisher: publisher}
}

func (s *SyncingStore) Get(ctx context.Context, date core.Date) (core.DayRecord, bool, error) {
	return s.local.Get(ctx, date)
}

func (s *SyncingStore) Dates(ctx context.Context) ([]core.Date, error) {
	return s.local.Dates(ctx)
}

// Put saves to SQLite first, then announces the change.
func (s *SyncingStore) Put(ctx context.Context, rec core.DayRecord) error {
	version, err := s.local.PutVersioned(ctx, rec)
	if err != nil {
		return fmt.Errorf("save day: %w", err)
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping sync message")
		return nil
	}
	if err := s.publisher.PublishDaySaved(ctx, rec.Date.String(), version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish day saved message",
			"date", rec.Date.String(), "version", version, "error", err)
	}
	return nil
}

// Close closes whatever of local and publisher implements io.Closer.
func (s *SyncingStore) Close() error {
	var errs []error
	if c, ok := s.local.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
