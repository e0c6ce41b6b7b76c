package provisioning

import (
	"context"
	"time"
)

// Filter narrows a source fetch. A zero ModifiedSince means a full sweep.
type Filter struct {
	ModifiedSince time.Time
	PageSize      int
	PageToken     string
}

// Page is one slice of source results. An empty NextPageToken means the
// result set is exhausted. The engine must tolerate partial result sets:
// process what came back, continue from the token.
type Page struct {
	Records       []RawRecord
	NextPageToken string
}

// RecordSource is the upstream query service that owns provisioning records.
// Implementations wrap whatever transport the source exposes; failures to
// reach it should wrap sentinel.ErrSourceUnavailable so a run can abort
// cleanly and retry on the next tick.
type RecordSource interface {
	FetchRecords(ctx context.Context, filter Filter) (Page, error)
}
