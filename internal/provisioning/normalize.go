package provisioning

import (
	"fmt"
	"sort"
	"time"

	"deployassist/pkg/platform/sentinel"
)

// RawRecord is a provisioning record exactly as the source returned it. The
// payload is kept verbatim so a failed capture can still land in the audit
// ledger untouched.
type RawRecord struct {
	Payload map[string]any
}

// ParseWarning marks a data-quality problem found during normalization. It is
// attached to the capture, never raised as an error: a bad line must not
// abort the batch.
type ParseWarning struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// The source system has gone through several payload generations: Salesforce
// API field names, custom-object suffixed names, and a camelCase export
// format. Each logical field lists every spelling observed, newest first.
// All fallback knowledge lives here; downstream code sees only Record.
var (
	idKeys           = []string{"Id", "id"}
	nameKeys         = []string{"Name", "name"}
	accountIDKeys    = []string{"AccountId", "Account_Id__c", "accountId"}
	accountNameKeys  = []string{"AccountName", "Account_Name__c", "accountName"}
	statusKeys       = []string{"Status", "Status__c", "status"}
	requestTypeKeys  = []string{"RequestType", "Request_Type__c", "Type", "requestType"}
	createdKeys      = []string{"CreatedDate", "Created_Date__c", "createdAt"}
	lastModifiedKeys = []string{"LastModifiedDate", "Last_Modified_Date__c", "lastModifiedAt"}
	lineListKeys     = []string{"ProvisioningDetails", "Provisioning_Details__r", "LineItems", "lineItems"}

	productCodeKeys = []string{"ProductCode", "Product_Code__c", "productCode"}
	categoryKeys    = []string{"Category", "Product_Category__c", "category"}
	modifierKeys    = []string{"Modifier", "Product_Modifier__c", "modifier"}
	startDateKeys   = []string{"StartDate", "Start_Date__c", "startDate"}
	endDateKeys     = []string{"EndDate", "End_Date__c", "endDate"}
	quantityKeys    = []string{"Quantity", "Quantity__c", "quantity"}
	packageKeys     = []string{"PackageName", "Package_Name__c", "packageName"}
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700", // Salesforce datetime
	"2006-01-02",
}

// Normalize maps a raw payload onto the canonical Record. Unparsable line
// items and inverted date ranges come back as warnings alongside a usable
// record; only a payload with no stable identifier is rejected outright.
func Normalize(raw RawRecord) (Record, []ParseWarning, error) {
	id := stringAt(raw.Payload, idKeys)
	if id == "" {
		return Record{}, nil, fmt.Errorf("payload has no record id: %w", sentinel.ErrMalformedRecord)
	}

	var warnings []ParseWarning
	rec := Record{
		ID:          id,
		Name:        stringAt(raw.Payload, nameKeys),
		AccountID:   accountID(raw.Payload),
		AccountName: accountName(raw.Payload),
		Status:      stringAt(raw.Payload, statusKeys),
		RequestType: parseRequestType(stringAt(raw.Payload, requestTypeKeys)),
	}

	rec.CreatedAt, warnings = parseDateField(raw.Payload, createdKeys, "createdAt", warnings)
	rec.LastModifiedAt, warnings = parseDateField(raw.Payload, lastModifiedKeys, "lastModifiedAt", warnings)

	lines, lineWarnings := normalizeLines(raw.Payload)
	rec.Entitlements = lines
	warnings = append(warnings, lineWarnings...)

	return rec, warnings, nil
}

func normalizeLines(payload map[string]any) ([]EntitlementLine, []ParseWarning) {
	items, found := lineItems(payload)
	if !found {
		return nil, nil
	}

	var (
		lines    []EntitlementLine
		warnings []ParseWarning
	)
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			warnings = append(warnings, ParseWarning{
				Field:  fmt.Sprintf("entitlements[%d]", i),
				Detail: "line item is not an object",
			})
			continue
		}

		line := EntitlementLine{
			ProductCode: stringAt(m, productCodeKeys),
			Category:    Category(stringAt(m, categoryKeys)),
			Modifier:    stringAt(m, modifierKeys),
			PackageName: stringAt(m, packageKeys),
			Quantity:    intAt(m, quantityKeys),
		}
		if line.ProductCode == "" {
			warnings = append(warnings, ParseWarning{
				Field:  fmt.Sprintf("entitlements[%d].productCode", i),
				Detail: "missing product code",
			})
			continue
		}

		line.StartDate, warnings = parseDateField(m, startDateKeys, fmt.Sprintf("entitlements[%d].startDate", i), warnings)
		line.EndDate, warnings = parseDateField(m, endDateKeys, fmt.Sprintf("entitlements[%d].endDate", i), warnings)

		// The source does not guarantee startDate <= endDate. Keep the line,
		// flag the range.
		if !line.StartDate.IsZero() && !line.EndDate.IsZero() && line.EndDate.Before(line.StartDate) {
			warnings = append(warnings, ParseWarning{
				Field:  fmt.Sprintf("entitlements[%d]", i),
				Detail: fmt.Sprintf("inverted date range for %s", line.ProductCode),
			})
		}

		lines = append(lines, line)
	}
	return lines, warnings
}

// lineItems handles both the flat-array shape and the Salesforce subquery
// shape where the list hides under a "records" key.
func lineItems(payload map[string]any) ([]any, bool) {
	for _, key := range lineListKeys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case []any:
			return t, true
		case map[string]any:
			if records, ok := t["records"].([]any); ok {
				return records, true
			}
		}
	}
	return nil, false
}

func accountID(payload map[string]any) string {
	if v := stringAt(payload, accountIDKeys); v != "" {
		return v
	}
	if acc, ok := payload["Account"].(map[string]any); ok {
		return stringAt(acc, idKeys)
	}
	return ""
}

func accountName(payload map[string]any) string {
	if v := stringAt(payload, accountNameKeys); v != "" {
		return v
	}
	if acc, ok := payload["Account"].(map[string]any); ok {
		return stringAt(acc, nameKeys)
	}
	return ""
}

func parseRequestType(v string) RequestType {
	switch RequestType(v) {
	case RequestTypeNew, RequestTypeUpdate, RequestTypeDeprovision:
		return RequestType(v)
	}
	// Older exports used verbose labels.
	switch v {
	case "New Provisioning", "Provision":
		return RequestTypeNew
	case "Update Provisioning", "Change":
		return RequestTypeUpdate
	case "Deprovisioning", "Deprovision Request", "Teardown":
		return RequestTypeDeprovision
	}
	return RequestType(v)
}

func parseDateField(m map[string]any, keys []string, field string, warnings []ParseWarning) (time.Time, []ParseWarning) {
	raw := stringAt(m, keys)
	if raw == "" {
		return time.Time{}, warnings
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Day(t), warnings
		}
	}
	return time.Time{}, append(warnings, ParseWarning{Field: field, Detail: fmt.Sprintf("unparsable date %q", raw)})
}

func stringAt(m map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func intAt(m map[string]any, keys []string) int {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

// SortedLines returns a copy of the record's lines in a canonical order so
// callers can compare line sets without caring about source ordering.
func SortedLines(lines []EntitlementLine) []EntitlementLine {
	out := make([]EntitlementLine, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ProductCode != b.ProductCode {
			return a.ProductCode < b.ProductCode
		}
		if a.Modifier != b.Modifier {
			return a.Modifier < b.Modifier
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		if !a.EndDate.Equal(b.EndDate) {
			return a.EndDate.Before(b.EndDate)
		}
		return a.Quantity < b.Quantity
	})
	return out
}
