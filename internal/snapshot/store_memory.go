package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"deployassist/internal/provisioning"
	"deployassist/pkg/platform/sentinel"
)

// InMemoryStore implements Store for tests and local development. A single
// mutex makes Apply atomic the way the postgres transaction does.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	latest  map[string]provisioning.Record
}

// NewInMemoryStore creates an empty in-memory snapshot store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string][]Entry),
		latest:  make(map[string]provisioning.Record),
	}
}

// Apply appends the entry and replaces the latest projection.
func (s *InMemoryStore) Apply(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.RecordID == "" {
		return fmt.Errorf("entry has no record id: %w", sentinel.ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries[entry.RecordID] {
		if existing.CapturedAt.Equal(entry.CapturedAt) {
			return fmt.Errorf("ledger row for %s at %s exists: %w",
				entry.RecordID, entry.CapturedAt, sentinel.ErrConflict)
		}
	}

	s.entries[entry.RecordID] = append(s.entries[entry.RecordID], entry)
	s.latest[entry.RecordID] = entry.Snapshot
	return nil
}

func (s *InMemoryStore) LatestByRecordID(ctx context.Context, recordID string) (*provisioning.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.latest[recordID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	cp := rec
	return &cp, nil
}

func (s *InMemoryStore) LatestSnapshots(ctx context.Context) ([]provisioning.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]provisioning.Record, 0, len(s.latest))
	for _, rec := range s.latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) EntriesByRecordID(ctx context.Context, recordID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := append([]Entry(nil), s.entries[recordID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].CapturedAt.After(entries[j].CapturedAt) })
	return entries, nil
}
