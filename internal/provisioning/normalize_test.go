package provisioning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployassist/pkg/platform/sentinel"
)

func salesforcePayload() map[string]any {
	return map[string]any{
		"Id":               "a0X5e00000Abcde",
		"Name":             "PS-4215",
		"AccountId":        "0015e00000Acme",
		"AccountName":      "Acme Corp",
		"Status":           "Completed",
		"RequestType":      "New",
		"CreatedDate":      "2024-02-01T09:30:00.000-0000",
		"LastModifiedDate": "2024-03-15T17:05:00.000-0000",
		"ProvisioningDetails": map[string]any{
			"records": []any{
				map[string]any{
					"ProductCode": "APP-1",
					"Category":    "App",
					"StartDate":   "2024-02-01",
					"EndDate":     "2025-02-01",
					"Quantity":    float64(5),
					"PackageName": "Enterprise",
				},
			},
		},
	}
}

func TestNormalize(t *testing.T) {
	t.Run("salesforce shape maps to canonical record", func(t *testing.T) {
		rec, warnings, err := Normalize(RawRecord{Payload: salesforcePayload()})
		require.NoError(t, err)
		assert.Empty(t, warnings)

		assert.Equal(t, "a0X5e00000Abcde", rec.ID)
		assert.Equal(t, "PS-4215", rec.Name)
		assert.Equal(t, "0015e00000Acme", rec.AccountID)
		assert.Equal(t, "Acme Corp", rec.AccountName)
		assert.Equal(t, RequestTypeNew, rec.RequestType)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), rec.CreatedAt)

		require.Len(t, rec.Entitlements, 1)
		line := rec.Entitlements[0]
		assert.Equal(t, "APP-1", line.ProductCode)
		assert.Equal(t, CategoryApp, line.Category)
		assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), line.EndDate)
		assert.Equal(t, 5, line.Quantity)
	})

	t.Run("legacy custom-object shape maps to the same record", func(t *testing.T) {
		payload := map[string]any{
			"Id":                    "a0X5e00000Abcde",
			"Name":                  "PS-4215",
			"Account":               map[string]any{"Id": "0015e00000Acme", "Name": "Acme Corp"},
			"Status__c":             "Completed",
			"Request_Type__c":       "Deprovisioning",
			"Created_Date__c":       "2024-02-01",
			"Last_Modified_Date__c": "2024-03-15",
			"LineItems": []any{
				map[string]any{
					"Product_Code__c": "APP-1",
					"Start_Date__c":   "2024-02-01",
					"End_Date__c":     "2025-02-01",
					"Quantity__c":     float64(5),
				},
			},
		}

		rec, warnings, err := Normalize(RawRecord{Payload: payload})
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, "0015e00000Acme", rec.AccountID)
		assert.Equal(t, "Acme Corp", rec.AccountName)
		assert.Equal(t, RequestTypeDeprovision, rec.RequestType)
		require.Len(t, rec.Entitlements, 1)
		assert.Equal(t, "APP-1", rec.Entitlements[0].ProductCode)
	})

	t.Run("missing id rejects the payload", func(t *testing.T) {
		_, _, err := Normalize(RawRecord{Payload: map[string]any{"Name": "PS-1"}})
		require.ErrorIs(t, err, sentinel.ErrMalformedRecord)
	})

	t.Run("unparsable line becomes a warning not an error", func(t *testing.T) {
		payload := salesforcePayload()
		payload["ProvisioningDetails"] = map[string]any{
			"records": []any{
				"not-an-object",
				map[string]any{
					"ProductCode": "DATA-9",
					"StartDate":   "2024-01-01",
					"EndDate":     "garbage",
				},
			},
		}

		rec, warnings, err := Normalize(RawRecord{Payload: payload})
		require.NoError(t, err)
		require.Len(t, rec.Entitlements, 1)
		assert.Equal(t, "DATA-9", rec.Entitlements[0].ProductCode)
		require.Len(t, warnings, 2)
		assert.Contains(t, warnings[0].Detail, "not an object")
		assert.Contains(t, warnings[1].Detail, "unparsable date")
	})

	t.Run("inverted date range is kept and flagged", func(t *testing.T) {
		payload := salesforcePayload()
		payload["ProvisioningDetails"] = map[string]any{
			"records": []any{
				map[string]any{
					"ProductCode": "MODEL-2",
					"StartDate":   "2025-06-01",
					"EndDate":     "2024-06-01",
				},
			},
		}

		rec, warnings, err := Normalize(RawRecord{Payload: payload})
		require.NoError(t, err)
		require.Len(t, rec.Entitlements, 1)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Detail, "inverted date range")
	})
}

func TestSortedLines(t *testing.T) {
	a := EntitlementLine{ProductCode: "B", StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := EntitlementLine{ProductCode: "A", StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := EntitlementLine{ProductCode: "A", StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}

	sorted := SortedLines([]EntitlementLine{a, b, c})
	assert.Equal(t, []EntitlementLine{c, b, a}, sorted)
}
