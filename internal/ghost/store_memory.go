package ghost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"deployassist/pkg/platform/sentinel"
)

// InMemoryStore implements Store for tests and local development.
type InMemoryStore struct {
	mu         sync.RWMutex
	candidates map[string]Candidate
}

// NewInMemoryStore creates an empty in-memory candidate store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{candidates: make(map[string]Candidate)}
}

func (s *InMemoryStore) Upsert(ctx context.Context, candidate Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if candidate.HasReviewState() {
		return fmt.Errorf("computed upsert carries review state for %s: %w",
			candidate.AccountID, sentinel.ErrReviewProtected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.candidates[candidate.AccountID]; ok {
		candidate.IsReviewed = existing.IsReviewed
		candidate.ReviewedBy = existing.ReviewedBy
		candidate.ReviewedAt = existing.ReviewedAt
		candidate.Notes = existing.Notes
	}
	s.candidates[candidate.AccountID] = candidate
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, accountID string) (*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[accountID]
	if !ok {
		return nil, fmt.Errorf("ghost candidate %s: %w", accountID, sentinel.ErrNotFound)
	}
	cp := c
	return &cp, nil
}

func (s *InMemoryStore) List(ctx context.Context, filter ListFilter) ([]Candidate, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Candidate
	for _, c := range s.candidates {
		if filter.Reviewed != nil && c.IsReviewed != *filter.Reviewed {
			continue
		}
		if filter.AccountName != "" &&
			!strings.Contains(strings.ToLower(c.AccountName), strings.ToLower(filter.AccountName)) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.LatestExpiryDate.Equal(b.LatestExpiryDate) {
			return a.LatestExpiryDate.Before(b.LatestExpiryDate)
		}
		return a.AccountID < b.AccountID
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *InMemoryStore) MarkReviewed(ctx context.Context, accountID, reviewer, notes string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[accountID]
	if !ok {
		return fmt.Errorf("ghost candidate %s: %w", accountID, sentinel.ErrNotFound)
	}
	c.IsReviewed = true
	c.ReviewedBy = reviewer
	c.ReviewedAt = &at
	c.Notes = notes
	s.candidates[accountID] = c
	return nil
}

func (s *InMemoryStore) Remove(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.candidates, accountID)
	return nil
}
