// Package provisioning defines the canonical model of a Professional-Services
// provisioning request and the normalization step that maps every historical
// payload shape the source system has produced onto it. Downstream packages
// never see raw payloads.
package provisioning

import (
	"time"
)

// RequestType is the semantically meaningful lifecycle intent of a record.
type RequestType string

const (
	RequestTypeNew         RequestType = "New"
	RequestTypeUpdate      RequestType = "Update"
	RequestTypeDeprovision RequestType = "Deprovision"
)

// Category groups entitlement lines by what kind of asset they grant.
type Category string

const (
	CategoryModel Category = "Model"
	CategoryData  Category = "Data"
	CategoryApp   Category = "App"
)

// Record is one provisioning request captured at a point in time. A later
// capture of the same ID produces a new snapshot, never a mutation of an
// earlier one.
type Record struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	AccountID      string            `json:"accountId"`
	AccountName    string            `json:"accountName"`
	Status         string            `json:"status"`
	RequestType    RequestType       `json:"requestType"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastModifiedAt time.Time         `json:"lastModifiedAt"`
	Entitlements   []EntitlementLine `json:"entitlements"`
}

// EntitlementLine is one product grant within a record. StartDate after
// EndDate is tolerated as a source data-quality problem, not an error.
type EntitlementLine struct {
	ProductCode string    `json:"productCode"`
	Category    Category  `json:"category"`
	Modifier    string    `json:"modifier,omitempty"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Quantity    int       `json:"quantity"`
	PackageName string    `json:"packageName,omitempty"`
}

// IsDeprovision reports whether this record acknowledges teardown of the
// account's entitlements.
func (r Record) IsDeprovision() bool {
	return r.RequestType == RequestTypeDeprovision
}

// Equal compares two lines field by field at date precision.
func (l EntitlementLine) Equal(other EntitlementLine) bool {
	return l.ProductCode == other.ProductCode &&
		l.Category == other.Category &&
		l.Modifier == other.Modifier &&
		sameDay(l.StartDate, other.StartDate) &&
		sameDay(l.EndDate, other.EndDate) &&
		l.Quantity == other.Quantity &&
		l.PackageName == other.PackageName
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Day truncates t to calendar-date precision in UTC. Entitlement dates carry
// no meaningful time component.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
