package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "milkbook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleDay(d core.Date, paid int64) core.DayRecord {
	return core.DayRecord{
		Date:         d,
		Items:        []core.LineItem{core.NewLineItem("a", "Amul Taza", core.QuantityFromFloat(2.5), core.MoneyFromInt(27))},
		TotalPaid:    core.MoneyFromInt(paid),
		CarryForward: core.MoneyFromFloat(-12.5),
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, ok, err := repo.Get(context.Background(), core.NewDate(2024, 3, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := sampleDay(core.NewDate(2024, 3, 1), 40)

	require.NoError(t, repo.Put(ctx, rec))

	got, ok, err := repo.Get(ctx, rec.Date)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "67.50", got.Items[0].Total.String())
	assert.True(t, got.TotalPaid.Equal(rec.TotalPaid))
	assert.Equal(t, "-12.50", got.CarryForward.String())
}

func TestRepository_PutBumpsVersionAndResetsSync(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	d := core.NewDate(2024, 3, 1)

	v1, err := repo.PutVersioned(ctx, sampleDay(d, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	ok, err := repo.MarkSynced(ctx, d, v1)
	require.NoError(t, err)
	assert.True(t, ok)
	status, err := repo.SyncStatus(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, status)

	v2, err := repo.PutVersioned(ctx, sampleDay(d, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)
	status, err = repo.SyncStatus(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, SyncPending, status)
}

func TestRepository_MarkSyncedIgnoresStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	d := core.NewDate(2024, 3, 1)

	require.NoError(t, repo.Put(ctx, sampleDay(d, 10)))
	require.NoError(t, repo.Put(ctx, sampleDay(d, 20)))

	ok, err := repo.MarkSynced(ctx, d, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := repo.GetPendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].Version)
}

func TestRepository_PendingSyncIncludesErrorsOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	d1, d2, d3 := core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 2), core.NewDate(2024, 3, 3)
	require.NoError(t, repo.Put(ctx, sampleDay(d2, 0)))
	require.NoError(t, repo.Put(ctx, sampleDay(d1, 0)))
	require.NoError(t, repo.Put(ctx, sampleDay(d3, 0)))

	_, err := repo.MarkSynced(ctx, d3, 1)
	require.NoError(t, err)
	require.NoError(t, repo.MarkSyncError(ctx, d1))

	pending, err := repo.GetPendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "2024-03-02", pending[0].Date.String())
	assert.Equal(t, "2024-03-01", pending[1].Date.String())

	limited, err := repo.GetPendingSync(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepository_DatesAscending(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Put(ctx, sampleDay(core.NewDate(2024, 3, 2), 0)))
	require.NoError(t, repo.Put(ctx, sampleDay(core.NewDate(2023, 12, 31), 0)))

	dates, err := repo.Dates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, "2023-12-31", dates[0].String())
}

func TestRepository_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "milkbook.db")

	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Put(ctx, sampleDay(core.NewDate(2024, 3, 1), 5)))
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	_, ok, err := repo.Get(ctx, core.NewDate(2024, 3, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_RejectsZeroDate(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Put(context.Background(), core.DayRecord{})
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}
