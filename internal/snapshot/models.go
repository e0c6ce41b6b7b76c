// Package snapshot owns the append-only capture ledger: detecting what
// changed between source sweeps and keeping the materialized latest-per-record
// projection that analysis reads. Ledger rows are written exclusively here and
// never updated or deleted.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"deployassist/internal/provisioning"
)

// Entry is one append-only ledger row. ChangedFields is empty only for rows
// that predate the field (first sightings carry every field name).
type Entry struct {
	ID            uuid.UUID                   `json:"id"`
	RecordID      string                      `json:"recordId"`
	CapturedAt    time.Time                   `json:"capturedAt"`
	Snapshot      provisioning.Record         `json:"fieldsSnapshot"`
	ChangedFields []string                    `json:"changedFields"`
	ParseWarnings []provisioning.ParseWarning `json:"parseWarnings,omitempty"`

	// RawPayload preserves the source payload verbatim when normalization
	// produced warnings, so the ledger row is still a faithful capture.
	RawPayload map[string]any `json:"rawPayload,omitempty"`
}

// HasParseWarning reports whether this capture flagged data-quality problems.
func (e Entry) HasParseWarning() bool {
	return len(e.ParseWarnings) > 0
}
