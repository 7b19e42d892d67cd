package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"milkbook/internal/core"
	"milkbook/internal/store"
)

// SeedFile is the optional JSON document read by NewFromFiles.
const SeedFile = "seed_ledger.json"

type Store struct {
	mu   sync.RWMutex
	days map[string]core.DayRecord
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Lister = (*Store)(nil)
)

func New(records ...core.DayRecord) *Store {
	s := &Store{days: make(map[string]core.DayRecord, len(records))}
	for _, r := range records {
		s.days[r.Date.String()] = r.Clone()
	}
	return s
}

// NewFromFiles seeds the store from base/seed_ledger.json when present. The
// file is a ledger document (see store.DecodeDocument). A missing file
// yields an empty store.
func NewFromFiles(base string) (*Store, error) {
	raw, err := os.ReadFile(filepath.Join(base, SeedFile))
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	records, err := store.DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", SeedFile, err)
	}
	return New(records...), nil
}

// Get returns a copy of the stored record.
func (s *Store) Get(_ context.Context, date core.Date) (core.DayRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.days[date.String()]
	if !ok {
		return core.DayRecord{}, false, nil
	}
	return r.Clone(), true, nil
}

// Put replaces the record for rec.Date.
func (s *Store) Put(_ context.Context, rec core.DayRecord) error {
	if err := rec.Date.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[rec.Date.String()] = rec.Clone()
	return nil
}

func (s *Store) Dates(_ context.Context) ([]core.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Date, 0, len(s.days))
	for _, r := range s.days {
		out = append(out, r.Date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j].Time) })
	return out, nil
}
