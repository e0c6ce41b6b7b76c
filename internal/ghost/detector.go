package ghost

import (
	"time"

	"deployassist/internal/lifecycle"
	"deployassist/internal/provisioning"
)

// Detect decides whether an account is a ghost candidate. It returns nil when
// the account is healthy:
//
//   - no expired products at all,
//   - any entitlement still Active or ExpiringSoon, or
//   - a Deprovision record created after the latest expiry, meaning someone
//     already acknowledged the teardown.
//
// records are the account's latest snapshots; only their request type and
// creation date matter here. now stamps LastChecked so review queues can show
// staleness.
func Detect(accountID, accountName string, classified []lifecycle.Classified, records []provisioning.Record, now time.Time) *Candidate {
	var (
		expiredCount int
		latestExpiry time.Time
	)
	for _, c := range classified {
		switch c.State {
		case lifecycle.StateActive, lifecycle.StateExpiringSoon:
			return nil
		case lifecycle.StateExpired:
			if c.IsExtended {
				// Superseded occurrence; the winning window for this product
				// is also in the list and decides the account's fate.
				continue
			}
			expiredCount++
			if c.EffectiveEndDate.After(latestExpiry) {
				latestExpiry = c.EffectiveEndDate
			}
		}
	}
	if expiredCount == 0 {
		return nil
	}

	for _, rec := range records {
		if rec.IsDeprovision() && rec.CreatedAt.After(latestExpiry) {
			return nil
		}
	}

	return &Candidate{
		AccountID:            accountID,
		AccountName:          accountName,
		TotalExpiredProducts: expiredCount,
		LatestExpiryDate:     latestExpiry,
		LastChecked:          now,
	}
}
