// Package file persists the whole ledger as one JSON document on disk.
//
// Every call re-reads the document, so two processes sharing the file see
// each other's writes. Writes go to a temp file renamed over the existing
// document, so a crash mid-write leaves the previous version in place.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"milkbook/internal/core"
	"milkbook/internal/store"
)

type Store struct {
	mu   sync.Mutex
	path string
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Lister = (*Store)(nil)
)

// New prepares a document store at path, creating its directory.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get(_ context.Context, date core.Date) (core.DayRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.load()
	if err != nil {
		return core.DayRecord{}, false, err
	}
	rec, ok := days[date.String()]
	return rec, ok, nil
}

func (s *Store) Put(_ context.Context, rec core.DayRecord) error {
	if err := rec.Date.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.load()
	if err != nil {
		return err
	}
	days[rec.Date.String()] = rec.Clone()
	return s.save(days)
}

func (s *Store) Dates(_ context.Context) ([]core.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Date, 0, len(days))
	for _, r := range days {
		out = append(out, r.Date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j].Time) })
	return out, nil
}

func (s *Store) load() (map[string]core.DayRecord, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]core.DayRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(raw) == 0 {
		return map[string]core.DayRecord{}, nil
	}
	records, err := store.DecodeDocument(raw)
	if err != nil {
		return nil, err
	}
	days := make(map[string]core.DayRecord, len(records))
	for _, r := range records {
		days[r.Date.String()] = r
	}
	return days, nil
}

func (s *Store) save(days map[string]core.DayRecord) error {
	records := make([]core.DayRecord, 0, len(days))
	for _, r := range days {
		records = append(records, r)
	}
	raw, err := store.EncodeDocument(records)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
