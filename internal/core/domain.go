package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage key format for day records.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date held at UTC midnight.
	Date struct {
		time.Time
	}

	LineItem struct {
		ID          string   `json:"id"`
		ProductType string   `json:"productType"`
		Quantity    Quantity `json:"quantity"`
		Rate        Money    `json:"rate"`
		Total       Money    `json:"total"`
	}

	// DayRecord is the persisted ledger entry for one calendar date.
	DayRecord struct {
		Date         Date       `json:"date"`
		Items        []LineItem `json:"items"`
		TotalPaid    Money      `json:"totalPaid"`
		CarryForward Money      `json:"carryForward"`
	}
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")

	ErrInvalidDate   = fmt.Errorf("%w: invalid date", ErrInvalidInput)
	ErrInvalidItem   = fmt.Errorf("%w: invalid item", ErrInvalidInput)
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
)

// ParseDate parses a strict YYYY-MM-DD string. Parsing happens in UTC so
// the result never shifts with the local timezone.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	// 0001-01-01 is time.Time's zero value, which Date treats as "no date".
	if t.IsZero() {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Previous returns the preceding calendar day.
func (d Date) Previous() Date {
	return d.AddDays(-1)
}

// Next returns the following calendar day.
func (d Date) Next() Date {
	return d.AddDays(1)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// String returns the YYYY-MM-DD key.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewLineItem builds an item with its total computed from quantity and rate.
func NewLineItem(id, productType string, qty Quantity, rate Money) LineItem {
	return LineItem{
		ID:          id,
		ProductType: productType,
		Quantity:    qty,
		Rate:        rate,
		Total:       qty.Times(rate),
	}
}

// Recompute returns a copy with Total derived from Quantity and Rate.
func (li LineItem) Recompute() LineItem {
	li.Total = li.Quantity.Times(li.Rate)
	return li
}

func (li LineItem) Validate() error {
	if strings.TrimSpace(li.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidItem)
	}
	if strings.TrimSpace(li.ProductType) == "" {
		return fmt.Errorf("%w: empty product type (id %s)", ErrInvalidItem, li.ID)
	}
	if len(li.ProductType) > 100 {
		return fmt.Errorf("%w: product type too long (id %s)", ErrInvalidItem, li.ID)
	}
	if li.Quantity.IsNegative() {
		return fmt.Errorf("%w: negative quantity (id %s)", ErrInvalidItem, li.ID)
	}
	if li.Rate.IsNegative() {
		return fmt.Errorf("%w: negative rate (id %s)", ErrInvalidItem, li.ID)
	}
	return nil
}

// ItemsTotal sums the line totals.
func ItemsTotal(items []LineItem) Money {
	var total Money
	for _, it := range items {
		total = total.Add(it.Total)
	}
	return total
}

// Outstanding is what this record leaves unpaid from its own items. The
// record's own carryForward is deliberately not part of it.
func (r DayRecord) Outstanding() Money {
	return ItemsTotal(r.Items).Sub(r.TotalPaid)
}

func (r DayRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if r.TotalPaid.IsNegative() {
		return fmt.Errorf("%w: negative total paid", ErrInvalidAmount)
	}
	seen := make(map[string]struct{}, len(r.Items))
	for _, it := range r.Items {
		if err := it.Validate(); err != nil {
			return err
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidItem, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate shared item slices.
func (r DayRecord) Clone() DayRecord {
	out := r
	out.Items = append([]LineItem(nil), r.Items...)
	if out.Items == nil {
		out.Items = []LineItem{}
	}
	return out
}
