package snapshot

import (
	"time"

	"github.com/google/uuid"

	"deployassist/internal/provisioning"
	platformstrings "deployassist/pkg/platform/strings"
)

// Field names recorded in ChangedFields. The record ID is the comparison key
// and by definition never changes.
const (
	FieldName           = "name"
	FieldAccountID      = "accountId"
	FieldAccountName    = "accountName"
	FieldStatus         = "status"
	FieldRequestType    = "requestType"
	FieldCreatedAt      = "createdAt"
	FieldLastModifiedAt = "lastModifiedAt"
	FieldEntitlements   = "entitlements"
)

func allFields() []string {
	return []string{
		FieldAccountID,
		FieldAccountName,
		FieldCreatedAt,
		FieldEntitlements,
		FieldLastModifiedAt,
		FieldName,
		FieldRequestType,
		FieldStatus,
	}
}

// Detect compares a freshly normalized record against the most recent stored
// snapshot for the same record ID and returns the ledger entry to append, or
// nil when nothing differs. Re-running Detect on an unchanged record is a
// no-op, which is what makes repeated source sweeps idempotent.
//
// A nil prior means first sighting: the entry carries every field name.
// Entitlement lines are compared as a set; the source reorders subquery
// results freely and a reorder with identical content is not a change.
func Detect(record provisioning.Record, prior *provisioning.Record, capturedAt time.Time) *Entry {
	var changed []string
	if prior == nil {
		changed = allFields()
	} else {
		changed = diff(record, *prior)
		if len(changed) == 0 {
			return nil
		}
	}

	return &Entry{
		ID:            uuid.New(),
		RecordID:      record.ID,
		CapturedAt:    capturedAt,
		Snapshot:      record,
		ChangedFields: platformstrings.DedupeSorted(changed),
	}
}

func diff(record, prior provisioning.Record) []string {
	var changed []string
	if record.Name != prior.Name {
		changed = append(changed, FieldName)
	}
	if record.AccountID != prior.AccountID {
		changed = append(changed, FieldAccountID)
	}
	if record.AccountName != prior.AccountName {
		changed = append(changed, FieldAccountName)
	}
	if record.Status != prior.Status {
		changed = append(changed, FieldStatus)
	}
	if record.RequestType != prior.RequestType {
		changed = append(changed, FieldRequestType)
	}
	if !record.CreatedAt.Equal(prior.CreatedAt) {
		changed = append(changed, FieldCreatedAt)
	}
	if !record.LastModifiedAt.Equal(prior.LastModifiedAt) {
		changed = append(changed, FieldLastModifiedAt)
	}
	if !sameLineSet(record.Entitlements, prior.Entitlements) {
		changed = append(changed, FieldEntitlements)
	}
	return changed
}

func sameLineSet(a, b []provisioning.EntitlementLine) bool {
	if len(a) != len(b) {
		return false
	}
	as := provisioning.SortedLines(a)
	bs := provisioning.SortedLines(b)
	for i := range as {
		if !as[i].Equal(bs[i]) {
			return false
		}
	}
	return true
}
