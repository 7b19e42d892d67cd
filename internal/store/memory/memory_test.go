package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/core"
)

func TestMemoryStorePutGetReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := core.NewDate(2024, 3, 1)

	_, ok, err := s.Get(ctx, d)
	require.NoError(t, err)
	assert.False(t, ok)

	first := core.DayRecord{
		Date:  d,
		Items: []core.LineItem{core.NewLineItem("1", "Taza", core.QuantityFromFloat(2), core.MoneyFromInt(25))},
	}
	require.NoError(t, s.Put(ctx, first))

	second := core.DayRecord{Date: d, TotalPaid: core.MoneyFromInt(10)}
	require.NoError(t, s.Put(ctx, second))

	got, ok, err := s.Get(ctx, d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Items, "put must replace, not merge")
	assert.True(t, got.TotalPaid.Equal(core.MoneyFromInt(10)))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	d := core.NewDate(2024, 3, 1)
	s := New(core.DayRecord{
		Date:  d,
		Items: []core.LineItem{core.NewLineItem("1", "Taza", core.QuantityFromFloat(1), core.MoneyFromInt(10))},
	})

	got, _, _ := s.Get(ctx, d)
	got.Items[0].ProductType = "mutated"

	again, _, _ := s.Get(ctx, d)
	assert.Equal(t, "Taza", again.Items[0].ProductType)
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	// No file -> empty store
	s, err := NewFromFiles(dir)
	require.NoError(t, err)
	dates, _ := s.Dates(context.Background())
	assert.Empty(t, dates)

	seed := `{
		"2024-03-02": {"items": [], "totalPaid": 0, "carryForward": 0},
		"2024-03-01": {"date": "2024-03-01", "items": [{"id": "1", "productType": "Chhas", "quantity": 2, "rate": 15, "total": 30}], "totalPaid": 10, "carryForward": 0}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, SeedFile), []byte(seed), 0o644))

	s, err = NewFromFiles(dir)
	require.NoError(t, err)
	dates, _ = s.Dates(context.Background())
	require.Len(t, dates, 2)
	assert.Equal(t, "2024-03-01", dates[0].String())
	assert.Equal(t, "2024-03-02", dates[1].String())

	rec, ok, _ := s.Get(context.Background(), core.NewDate(2024, 3, 1))
	require.True(t, ok)
	assert.Equal(t, "20.00", rec.Outstanding().String())
}

func TestNewFromFilesRejectsBadSeed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SeedFile), []byte(`{"not-a-date": {}}`), 0o644))
	_, err := NewFromFiles(dir)
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}
