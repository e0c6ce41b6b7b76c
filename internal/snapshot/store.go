package snapshot

import (
	"context"

	"deployassist/internal/provisioning"
)

// Store persists the capture ledger and its latest-per-record projection.
// Apply must be atomic: the ledger append and the projection upsert either
// both land or neither does, so the projection can never get ahead of the
// ledger. Ledger rows are append-only; implementations must not expose any
// update or delete path for them.
type Store interface {
	// Apply appends the ledger entry and upserts the latest projection for
	// the entry's record.
	Apply(ctx context.Context, entry Entry) error

	// LatestByRecordID returns the most recent snapshot for a record, or
	// sentinel.ErrNotFound if the record has never been captured.
	LatestByRecordID(ctx context.Context, recordID string) (*provisioning.Record, error)

	// LatestSnapshots returns the latest snapshot of every known record.
	LatestSnapshots(ctx context.Context) ([]provisioning.Record, error)

	// EntriesByRecordID lists a record's ledger history, newest first.
	EntriesByRecordID(ctx context.Context, recordID string) ([]Entry, error)
}
