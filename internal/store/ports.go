// Package store defines the persistence contract for day records and the
// decorators that sit in front of a concrete backend.
package store

import (
	"context"

	"milkbook/internal/core"
)

// Ports for outbound adapters.
type (
	// Reader loads the record stored under an exact date key. A missing
	// record is reported with ok=false and a nil error.
	Reader interface {
		Get(ctx context.Context, date core.Date) (rec core.DayRecord, ok bool, err error)
	}

	// Writer fully replaces the record keyed by rec.Date.
	Writer interface {
		Put(ctx context.Context, rec core.DayRecord) error
	}

	// Store is what the ledger engine consumes.
	Store interface {
		Reader
		Writer
	}

	// Lister enumerates stored dates in ascending order. Used by export
	// and sync tooling, not by the engine.
	Lister interface {
		Dates(ctx context.Context) ([]core.Date, error)
	}
)
