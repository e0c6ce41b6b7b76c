package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployassist/internal/provisioning"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func baseRecord() provisioning.Record {
	return provisioning.Record{
		ID:             "rec-1",
		Name:           "PS-4215",
		AccountID:      "acct-1",
		AccountName:    "Acme Corp",
		Status:         "Completed",
		RequestType:    provisioning.RequestTypeNew,
		CreatedAt:      date(2024, 2, 1),
		LastModifiedAt: date(2024, 3, 15),
		Entitlements: []provisioning.EntitlementLine{
			{ProductCode: "APP-1", Category: provisioning.CategoryApp, StartDate: date(2024, 2, 1), EndDate: date(2025, 2, 1), Quantity: 5},
			{ProductCode: "DATA-9", Category: provisioning.CategoryData, StartDate: date(2024, 2, 1), EndDate: date(2025, 2, 1), Quantity: 1},
		},
	}
}

func TestDetect(t *testing.T) {
	now := date(2024, 4, 1)

	t.Run("first sighting carries all fields", func(t *testing.T) {
		entry := Detect(baseRecord(), nil, now)
		require.NotNil(t, entry)
		assert.Equal(t, "rec-1", entry.RecordID)
		assert.Equal(t, now, entry.CapturedAt)
		assert.ElementsMatch(t, []string{
			FieldName, FieldAccountID, FieldAccountName, FieldStatus,
			FieldRequestType, FieldCreatedAt, FieldLastModifiedAt, FieldEntitlements,
		}, entry.ChangedFields)
	})

	t.Run("unchanged record is a no-op", func(t *testing.T) {
		prior := baseRecord()
		assert.Nil(t, Detect(baseRecord(), &prior, now))
	})

	t.Run("reordered identical lines are not a change", func(t *testing.T) {
		prior := baseRecord()
		current := baseRecord()
		current.Entitlements[0], current.Entitlements[1] = current.Entitlements[1], current.Entitlements[0]
		assert.Nil(t, Detect(current, &prior, now))
	})

	t.Run("modified line is a change", func(t *testing.T) {
		prior := baseRecord()
		current := baseRecord()
		current.Entitlements[0].EndDate = date(2026, 2, 1)

		entry := Detect(current, &prior, now)
		require.NotNil(t, entry)
		assert.Equal(t, []string{FieldEntitlements}, entry.ChangedFields)
	})

	t.Run("added line is a change", func(t *testing.T) {
		prior := baseRecord()
		current := baseRecord()
		current.Entitlements = append(current.Entitlements, provisioning.EntitlementLine{
			ProductCode: "MODEL-3", StartDate: date(2024, 4, 1), EndDate: date(2025, 4, 1),
		})

		entry := Detect(current, &prior, now)
		require.NotNil(t, entry)
		assert.Equal(t, []string{FieldEntitlements}, entry.ChangedFields)
	})

	t.Run("scalar changes report each field", func(t *testing.T) {
		prior := baseRecord()
		current := baseRecord()
		current.Status = "Cancelled"
		current.LastModifiedAt = date(2024, 3, 20)

		entry := Detect(current, &prior, now)
		require.NotNil(t, entry)
		assert.Equal(t, []string{FieldLastModifiedAt, FieldStatus}, entry.ChangedFields)
	})
}
