package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/amqp"
	"milkbook/internal/core"
	"milkbook/internal/storage"
	"milkbook/internal/store/memory"
)

type failingTarget struct{ err error }

func (f failingTarget) Put(context.Context, core.DayRecord) error { return f.err }

func newSource(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "milkbook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func day(d core.Date, paid int64) core.DayRecord {
	return core.DayRecord{
		Date:      d,
		Items:     []core.LineItem{core.NewLineItem("a", "Taza", core.QuantityFromFloat(1), core.MoneyFromInt(27))},
		TotalPaid: core.MoneyFromInt(paid),
	}
}

func TestHandleDaySaved_MirrorsAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	src := newSource(t)
	target := memory.New()
	w := NewSyncWorker(src, target, 10)
	d := core.NewDate(2024, 3, 1)
	require.NoError(t, src.Put(ctx, day(d, 7)))

	require.NoError(t, w.HandleDaySaved(ctx, amqp.NewDaySavedMessage("2024-03-01", 1)))

	got, ok, err := target.Get(ctx, d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7.00", got.TotalPaid.String())

	status, err := src.SyncStatus(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncSynced, status)
}

func TestHandleDaySaved_BadDateIsDropped(t *testing.T) {
	w := NewSyncWorker(newSource(t), memory.New(), 10)
	assert.NoError(t, w.HandleDaySaved(context.Background(), &amqp.DaySavedMessage{Date: "yesterday"}))
}

func TestHandleDaySaved_TargetFailureMarksError(t *testing.T) {
	ctx := context.Background()
	src := newSource(t)
	boom := errors.New("sheets quota")
	w := NewSyncWorker(src, failingTarget{err: boom}, 10)
	d := core.NewDate(2024, 3, 1)
	require.NoError(t, src.Put(ctx, day(d, 0)))

	err := w.HandleDaySaved(ctx, amqp.NewDaySavedMessage(d.String(), 1))
	assert.ErrorIs(t, err, boom)

	status, err := src.SyncStatus(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncError, status)
}

func TestProcessPending_SyncsBacklog(t *testing.T) {
	ctx := context.Background()
	src := newSource(t)
	target := memory.New()
	w := NewSyncWorker(src, target, 10)

	for i := 1; i <= 3; i++ {
		require.NoError(t, src.Put(ctx, day(core.NewDate(2024, 3, i), int64(i))))
	}

	require.NoError(t, w.ProcessPending(ctx))

	dates, err := target.Dates(ctx)
	require.NoError(t, err)
	assert.Len(t, dates, 3)

	pending, err := src.GetPendingSync(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStartupSyncCheck_RetriesErrors(t *testing.T) {
	ctx := context.Background()
	src := newSource(t)
	d := core.NewDate(2024, 3, 1)
	require.NoError(t, src.Put(ctx, day(d, 0)))
	require.NoError(t, src.MarkSyncError(ctx, d))

	target := memory.New()
	require.NoError(t, NewSyncWorker(src, target, 1).StartupSyncCheck(ctx))

	_, ok, err := target.Get(ctx, d)
	require.NoError(t, err)
	assert.True(t, ok)
}
