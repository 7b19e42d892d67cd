// Package ledger holds the carry-forward computation over a day-record
// store.
//
// A date without a record inherits the unpaid balance (items total minus
// total paid) of the previous date's record. That balance is fixed into a
// record only when SaveDay runs; plain reads return stored records as-is.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/store"
)

// Options tunes carry-forward resolution.
type Options struct {
	// LookbackDays is how many calendar days before the target date are
	// searched for a record to carry from. 1 means only the previous day.
	LookbackDays int
}

// DefaultOptions looks back exactly one day.
func DefaultOptions() Options {
	return Options{LookbackDays: 1}
}

type Engine struct {
	store    store.Store
	lookback int
	logger   *applog.Logger
	newID    func() string
}

func NewEngine(st store.Store, opts Options, logger *applog.Logger) *Engine {
	if opts.LookbackDays < 1 {
		opts.LookbackDays = 1
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Engine{
		store:    st,
		lookback: opts.LookbackDays,
		logger:   logger.WithComponent(applog.ComponentLedger),
		newID:    uuid.NewString,
	}
}

// ComputeView returns the stored record for date, or an empty day carrying
// the previous balance when nothing is stored.
func (e *Engine) ComputeView(ctx context.Context, date string) (core.View, error) {
	d, err := core.ParseDate(date)
	if err != nil {
		return core.EmptyView(), err
	}

	rec, ok, err := e.get(ctx, d)
	if err != nil {
		return core.EmptyView(), err
	}
	if ok {
		return core.ViewOf(rec), nil
	}

	carry, err := e.carryInto(ctx, d)
	if err != nil {
		return core.EmptyView(), err
	}
	return core.View{Date: d, Items: []core.LineItem{}, CarryForward: carry}, nil
}

// SaveDay replaces the record for date with items and totalPaid. Item
// totals are recomputed, blank ids are generated, and carryForward is
// re-derived from the previous date whether or not a record exists.
func (e *Engine) SaveDay(ctx context.Context, date string, items []core.LineItem, totalPaid core.Money) (core.DayRecord, error) {
	d, err := core.ParseDate(date)
	if err != nil {
		return core.DayRecord{}, err
	}

	rec := core.DayRecord{
		Date:      d,
		Items:     e.normalizeItems(items),
		TotalPaid: totalPaid,
	}
	if err := rec.Validate(); err != nil {
		return core.DayRecord{}, err
	}

	rec.CarryForward, err = e.carryInto(ctx, d)
	if err != nil {
		return core.DayRecord{}, err
	}
	if err := e.put(ctx, rec, applog.OpSave); err != nil {
		return core.DayRecord{}, err
	}
	return rec, nil
}

// ApplyPayment adds amount to the day's total paid. Items and the stored
// carryForward are kept; for a date without a record the carry is derived
// as ComputeView would. Overpaying is allowed.
func (e *Engine) ApplyPayment(ctx context.Context, date string, amount core.Money) (core.DayRecord, error) {
	if !amount.IsPositive() {
		return core.DayRecord{}, fmt.Errorf("%w: payment must be positive", core.ErrInvalidAmount)
	}
	view, err := e.ComputeView(ctx, date)
	if err != nil {
		return core.DayRecord{}, err
	}

	rec := view.Record()
	rec.TotalPaid = rec.TotalPaid.Add(amount)
	if err := e.put(ctx, rec, applog.OpPay); err != nil {
		return core.DayRecord{}, err
	}
	return rec, nil
}

// DeleteItem drops one item from a stored record. Total paid and
// carryForward are untouched.
func (e *Engine) DeleteItem(ctx context.Context, date, itemID string) (core.DayRecord, error) {
	d, err := core.ParseDate(date)
	if err != nil {
		return core.DayRecord{}, err
	}
	rec, ok, err := e.get(ctx, d)
	if err != nil {
		return core.DayRecord{}, err
	}
	if !ok {
		return core.DayRecord{}, fmt.Errorf("%w: no record for %s", core.ErrNotFound, d)
	}

	kept := make([]core.LineItem, 0, len(rec.Items))
	for _, it := range rec.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(rec.Items) {
		return core.DayRecord{}, fmt.Errorf("%w: item %q on %s", core.ErrNotFound, itemID, d)
	}
	rec.Items = kept

	if err := e.put(ctx, rec, applog.OpDelete); err != nil {
		return core.DayRecord{}, err
	}
	return rec, nil
}

// carryInto walks back from d to the nearest stored record within the
// lookback window and returns what it left unpaid. The found record's own
// carryForward is not included.
func (e *Engine) carryInto(ctx context.Context, d core.Date) (core.Money, error) {
	for i := 1; i <= e.lookback; i++ {
		day := d.AddDays(-i)
		if day.IsZero() {
			break
		}
		prev, ok, err := e.get(ctx, day)
		if err != nil {
			return core.Money{}, err
		}
		if ok {
			return prev.Outstanding(), nil
		}
	}
	return core.Money{}, nil
}

func (e *Engine) normalizeItems(items []core.LineItem) []core.LineItem {
	out := make([]core.LineItem, 0, len(items))
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			it.ID = e.newID()
		}
		it.ProductType = strings.TrimSpace(it.ProductType)
		out = append(out, it.Recompute())
	}
	return out
}

func (e *Engine) get(ctx context.Context, d core.Date) (core.DayRecord, bool, error) {
	rec, ok, err := e.store.Get(ctx, d)
	if err != nil {
		return core.DayRecord{}, false, fmt.Errorf("%w: get %s: %w", core.ErrStoreUnavailable, d, err)
	}
	return rec, ok, nil
}

func (e *Engine) put(ctx context.Context, rec core.DayRecord, op string) error {
	fields := applog.NewFields().
		WithOperation(op).
		WithDay(rec.Date.String(), len(rec.Items), rec.TotalPaid.String(), rec.CarryForward.String())

	if err := e.store.Put(ctx, rec); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist day record", fields.WithError(err).ToSlice()...)
		return fmt.Errorf("%w: put %s: %w", core.ErrStoreUnavailable, rec.Date, err)
	}
	e.logger.InfoContext(ctx, "Day record saved", fields.ToSlice()...)
	return nil
}
