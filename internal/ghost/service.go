package ghost

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service exposes the review surface over the candidate store. The analysis
// run talks to the store directly; humans come through here.
type Service struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the review timestamp source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a review service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ghost store is required")
	}
	s := &Service{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns a filtered, paginated candidate page and the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Candidate, int, error) {
	return s.store.List(ctx, filter)
}

// MarkReviewed records a reviewer's sign-off on a candidate.
func (s *Service) MarkReviewed(ctx context.Context, accountID, reviewer, notes string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if reviewer == "" {
		return fmt.Errorf("reviewer is required")
	}

	if err := s.store.MarkReviewed(ctx, accountID, reviewer, notes, s.clock()); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "ghost candidate reviewed",
			"account_id", accountID,
			"reviewer", reviewer,
		)
	}
	return nil
}

// Remove deletes a candidate, typically after the account was cleaned up
// outside the source system's knowledge.
func (s *Service) Remove(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if err := s.store.Remove(ctx, accountID); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "ghost candidate removed", "account_id", accountID)
	}
	return nil
}
