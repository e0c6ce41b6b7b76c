// Package ghost flags accounts whose entire entitlement set has lapsed
// without a deprovisioning record acknowledging the teardown. Candidates are
// recomputed every run; human review state on a candidate belongs to the
// reviewer and is never written by the analysis path.
package ghost

import "time"

// Candidate is a flagged account. The analysis run owns the computed fields;
// IsReviewed, ReviewedBy, ReviewedAt, and Notes are mutated only through the
// review actions.
type Candidate struct {
	AccountID            string     `json:"accountId"`
	AccountName          string     `json:"accountName"`
	TotalExpiredProducts int        `json:"totalExpiredProducts"`
	LatestExpiryDate     time.Time  `json:"latestExpiryDate"`
	IsReviewed           bool       `json:"isReviewed"`
	ReviewedBy           string     `json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time `json:"reviewedAt,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	LastChecked          time.Time  `json:"lastChecked"`
}

// HasReviewState reports whether any reviewer-owned field is set. An
// analysis-computed candidate must never carry review state; the stores
// reject such an upsert as an internal bug.
func (c Candidate) HasReviewState() bool {
	return c.IsReviewed || c.ReviewedBy != "" || c.ReviewedAt != nil || c.Notes != ""
}

// ListFilter narrows and pages the candidate list.
type ListFilter struct {
	// Reviewed filters by review state when non-nil.
	Reviewed *bool
	// AccountName is a case-insensitive substring match.
	AccountName string
	Limit       int
	Offset      int
}
