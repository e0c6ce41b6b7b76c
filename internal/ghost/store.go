package ghost

import (
	"context"
	"time"
)

// Store persists ghost candidates keyed by account ID.
//
// Upsert takes an analysis-computed candidate and updates the computed fields
// only; review fields on an existing row survive every upsert. A candidate
// that arrives already carrying review state indicates a bug in the caller
// and is rejected with sentinel.ErrReviewProtected rather than applied.
type Store interface {
	Upsert(ctx context.Context, candidate Candidate) error

	// Get returns a candidate or sentinel.ErrNotFound.
	Get(ctx context.Context, accountID string) (*Candidate, error)

	// List returns a filtered page plus the total match count.
	List(ctx context.Context, filter ListFilter) ([]Candidate, int, error)

	// MarkReviewed records a reviewer's sign-off. ErrNotFound if absent.
	MarkReviewed(ctx context.Context, accountID, reviewer, notes string, at time.Time) error

	// Remove deletes a candidate. Removing an absent candidate is a no-op:
	// the analysis run calls this for every healthy account.
	Remove(ctx context.Context, accountID string) error
}
