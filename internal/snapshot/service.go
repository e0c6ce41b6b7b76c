package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deployassist/internal/provisioning"
	"deployassist/pkg/platform/sentinel"
)

// ChangePublisher receives every appended ledger entry. Implementations must
// tolerate being called concurrently for different records.
type ChangePublisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// Service is the capture path: normalize a raw record, compare it against the
// stored prior, append a ledger entry when something changed. Writes for the
// same record ID are serialized through a per-record lock; different records
// capture fully in parallel.
type Service struct {
	store     Store
	publisher ChangePublisher
	logger    *slog.Logger
	clock     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher attaches a change-feed publisher.
func WithPublisher(p ChangePublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the capture timestamp source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a capture service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	s := &Service{
		store: store,
		clock: time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Capture normalizes raw and appends a ledger entry if the record changed
// since its last capture. Returns nil when nothing changed. Parse warnings
// ride along on the entry with the raw payload preserved; they never fail
// the capture.
func (s *Service) Capture(ctx context.Context, raw provisioning.RawRecord) (*Entry, error) {
	record, warnings, err := provisioning.Normalize(raw)
	if err != nil {
		return nil, err
	}

	unlock := s.lockRecord(record.ID)
	defer unlock()

	prior, err := s.store.LatestByRecordID(ctx, record.ID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("load prior snapshot: %w", err)
	}

	entry := Detect(record, prior, s.clock())
	if entry == nil {
		return nil, nil
	}
	if len(warnings) > 0 {
		entry.ParseWarnings = warnings
		entry.RawPayload = raw.Payload
	}

	if err := s.store.Apply(ctx, *entry); err != nil {
		return nil, fmt.Errorf("apply capture: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "captured record change",
			"record_id", entry.RecordID,
			"changed_fields", entry.ChangedFields,
			"parse_warnings", len(entry.ParseWarnings),
		)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *entry); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "change publish failed", "record_id", entry.RecordID, "error", err)
		}
	}

	return entry, nil
}

// History lists a record's ledger entries, newest first.
func (s *Service) History(ctx context.Context, recordID string) ([]Entry, error) {
	return s.store.EntriesByRecordID(ctx, recordID)
}

// lockRecord serializes captures per record ID. Lock objects are kept for the
// process lifetime; the record cardinality is bounded by the source system.
func (s *Service) lockRecord(recordID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[recordID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
