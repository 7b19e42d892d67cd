// Package storage is the SQLite backend. Each saved day bumps a version and
// is marked pending until the sync worker has mirrored it elsewhere.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"milkbook/internal/core"
	"milkbook/internal/store"

	_ "modernc.org/sqlite"
)

// Sync states of a day record.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// PendingSync identifies a saved day the worker still has to mirror.
type PendingSync struct {
	Date      core.Date
	Version   int64
	UpdatedAt time.Time
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ store.Store  = (*SQLiteRepository)(nil)
	_ store.Lister = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get implements store.Reader.
func (r *SQLiteRepository) Get(ctx context.Context, date core.Date) (core.DayRecord, bool, error) {
	rec, _, err := r.GetVersioned(ctx, date)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DayRecord{}, false, nil
	}
	if err != nil {
		return core.DayRecord{}, false, err
	}
	return rec, true, nil
}

// GetVersioned returns the record with its current version. A missing row
// is reported as sql.ErrNoRows.
func (r *SQLiteRepository) GetVersioned(ctx context.Context, date core.Date) (core.DayRecord, int64, error) {
	const q = `SELECT items_json, total_paid, carry_forward, version FROM day_records WHERE date = ?`

	var (
		itemsJSON, paid, carry string
		version                int64
	)
	err := r.db.QueryRowContext(ctx, q, date.String()).Scan(&itemsJSON, &paid, &carry, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DayRecord{}, 0, err
	}
	if err != nil {
		return core.DayRecord{}, 0, fmt.Errorf("get day %s: %w", date, err)
	}

	rec, err := decodeRow(date, itemsJSON, paid, carry)
	if err != nil {
		return core.DayRecord{}, 0, fmt.Errorf("decode day %s: %w", date, err)
	}
	return rec, version, nil
}

// Put implements store.Writer. It upserts the record, bumps the version
// and marks the day pending sync.
func (r *SQLiteRepository) Put(ctx context.Context, rec core.DayRecord) error {
	_, err := r.PutVersioned(ctx, rec)
	return err
}

// PutVersioned is Put returning the new version.
func (r *SQLiteRepository) PutVersioned(ctx context.Context, rec core.DayRecord) (int64, error) {
	if err := rec.Date.Validate(); err != nil {
		return 0, err
	}
	items := rec.Items
	if items == nil {
		items = []core.LineItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encode items: %w", err)
	}

	const q = `
INSERT INTO day_records (date, items_json, total_paid, carry_forward, version, sync_status, updated_at)
VALUES (?, ?, ?, ?, 1, 'pending', ?)
ON CONFLICT(date) DO UPDATE SET
    items_json    = excluded.items_json,
    total_paid    = excluded.total_paid,
    carry_forward = excluded.carry_forward,
    version       = day_records.version + 1,
    sync_status   = 'pending',
    updated_at    = excluded.updated_at
RETURNING version`

	var version int64
	err = r.db.QueryRowContext(ctx, q,
		rec.Date.String(),
		string(itemsJSON),
		rec.TotalPaid.String(),
		rec.CarryForward.String(),
		r.now().UTC().Format(time.RFC3339Nano),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("save day %s: %w", rec.Date, err)
	}

	slog.DebugContext(ctx, "Day record saved to SQLite",
		"date", rec.Date.String(),
		"items", len(rec.Items),
		"version", version)
	return version, nil
}

// Dates implements store.Lister.
func (r *SQLiteRepository) Dates(ctx context.Context) ([]core.Date, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date FROM day_records ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	defer rows.Close()

	var out []core.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		d, err := core.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetPendingSync returns days waiting to be mirrored, oldest change first.
// Days that previously failed are retried too.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	const q = `
SELECT date, version, updated_at FROM day_records
WHERE sync_status IN ('pending', 'error')
ORDER BY updated_at
LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	defer rows.Close()

	var out []PendingSync
	for rows.Next() {
		var date, updated string
		var p PendingSync
		if err := rows.Scan(&date, &p.Version, &updated); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		if p.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced flags the day as mirrored, unless it changed again since
// version was read. It reports whether the row was updated.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, date core.Date, version int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE day_records SET sync_status = 'synced', synced_at = ? WHERE date = ? AND version = ?`,
		r.now().UTC().Format(time.RFC3339Nano), date.String(), version)
	if err != nil {
		return false, fmt.Errorf("mark day synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark day synced: %w", err)
	}
	return n > 0, nil
}

// MarkSyncError flags the day so the next sweep retries it.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, date core.Date) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE day_records SET sync_status = 'error' WHERE date = ?`, date.String())
	if err != nil {
		return fmt.Errorf("mark day sync error: %w", err)
	}
	return nil
}

// SyncStatus returns the stored sync state for date.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, date core.Date) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT sync_status FROM day_records WHERE date = ?`, date.String()).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get sync status: %w", err)
	}
	return status, nil
}

func decodeRow(date core.Date, itemsJSON, paid, carry string) (core.DayRecord, error) {
	items := []core.LineItem{}
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return core.DayRecord{}, fmt.Errorf("items: %w", err)
	}
	for i := range items {
		items[i] = items[i].Recompute()
	}
	totalPaid, err := core.ParseMoney(paid)
	if err != nil {
		return core.DayRecord{}, fmt.Errorf("total paid: %w", err)
	}
	carryForward, err := core.ParseSignedMoney(carry)
	if err != nil {
		return core.DayRecord{}, fmt.Errorf("carry forward: %w", err)
	}
	return core.DayRecord{Date: date, Items: items, TotalPaid: totalPaid, CarryForward: carryForward}, nil
}
