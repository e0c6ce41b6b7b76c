// Package rollup computes effective entitlement windows per product across
// all of an account's provisioning records. The source hands out overlapping
// and sometimes contradictory grant windows; the roll-up reduces them to one
// effective end date per product and marks superseded occurrences so the
// classifier can tell a real expiration from an old request whose product was
// renewed elsewhere.
package rollup

import (
	"sort"
	"time"

	"deployassist/internal/provisioning"
)

// MatchPolicy decides when two entitlement lines are grants of "the same
// thing" for extension purposes. The source system revised this rule several
// times with sharply different coverage outcomes, so it is an explicit
// configuration input here, not an inference.
type MatchPolicy string

const (
	// MatchProduct groups purely by product code.
	MatchProduct MatchPolicy = "product"
	// MatchProductModifier additionally requires the sub-variant to match,
	// so a renewal of a different variant does not suppress an expiry alarm.
	MatchProductModifier MatchPolicy = "product-modifier"
)

// Valid reports whether p is a known policy.
func (p MatchPolicy) Valid() bool {
	return p == MatchProduct || p == MatchProductModifier
}

func (p MatchPolicy) key(line provisioning.EntitlementLine) string {
	if p == MatchProductModifier {
		return line.ProductCode + "\x00" + line.Modifier
	}
	return line.ProductCode
}

// Entitlement is one rolled-up occurrence: the effective window a single
// record contributes for a product. Derived per analysis run, never stored as
// a source of truth.
type Entitlement struct {
	AccountID            string    `json:"accountId"`
	ProductCode          string    `json:"productCode"`
	Modifier             string    `json:"modifier,omitempty"`
	Category             provisioning.Category `json:"category,omitempty"`
	EffectiveEndDate     time.Time `json:"effectiveEndDate"`
	ContributingRecordID string    `json:"contributingRecordId"`

	// IsExtended marks an occurrence whose product has a later effective end
	// date contributed by a different record: an extension exists, this
	// occurrence's expiry is no longer meaningful for alerting.
	IsExtended bool `json:"isExtended"`
}

type occurrence struct {
	recordID      string
	recordCreated time.Time
	line          provisioning.EntitlementLine
}

// RollUp reduces all entitlement lines across an account's records to one
// occurrence per (record, product key), then marks every occurrence that a
// later grant from a different record supersedes.
//
// The reduction is deliberately two-phase. A single request can itself grant
// the same product twice with different renewal windows, so the within-record
// maximum must be taken before cross-record comparison means anything.
// Deprovision records grant nothing and are excluded.
func RollUp(records []provisioning.Record, policy MatchPolicy) []Entitlement {
	if !policy.Valid() {
		policy = MatchProduct
	}

	// Phase 1: within each record, keep the line with the max end date per
	// product key.
	perRecord := make(map[string]map[string]occurrence) // product key -> record id -> best line
	for _, rec := range records {
		if rec.IsDeprovision() {
			continue
		}
		for _, line := range rec.Entitlements {
			if line.ProductCode == "" || line.EndDate.IsZero() {
				continue
			}
			key := policy.key(line)
			byRecord, ok := perRecord[key]
			if !ok {
				byRecord = make(map[string]occurrence)
				perRecord[key] = byRecord
			}
			best, ok := byRecord[rec.ID]
			if !ok || line.EndDate.After(best.line.EndDate) {
				byRecord[rec.ID] = occurrence{recordID: rec.ID, recordCreated: rec.CreatedAt, line: line}
			}
		}
	}

	// Phase 2: across records, find the global max per product key and mark
	// every other record's occurrence as extended. Ties go to the more
	// recently created record so repeated runs stay deterministic.
	var out []Entitlement
	for _, byRecord := range perRecord {
		occurrences := make([]occurrence, 0, len(byRecord))
		for _, occ := range byRecord {
			occurrences = append(occurrences, occ)
		}
		sort.Slice(occurrences, func(i, j int) bool {
			a, b := occurrences[i], occurrences[j]
			if !a.line.EndDate.Equal(b.line.EndDate) {
				return a.line.EndDate.After(b.line.EndDate)
			}
			if !a.recordCreated.Equal(b.recordCreated) {
				return a.recordCreated.After(b.recordCreated)
			}
			return a.recordID < b.recordID
		})

		globalMax := occurrences[0].line.EndDate
		for i, occ := range occurrences {
			// A second record with the same maximum date is a duplicate of
			// the winning window, not an extension; emitting it would double
			// count the product downstream.
			if i > 0 && occ.line.EndDate.Equal(globalMax) {
				continue
			}
			out = append(out, Entitlement{
				AccountID:            accountIDOf(records, occ.recordID),
				ProductCode:          occ.line.ProductCode,
				Modifier:             occ.line.Modifier,
				Category:             occ.line.Category,
				EffectiveEndDate:     occ.line.EndDate,
				ContributingRecordID: occ.recordID,
				// Strictly earlier than the global maximum means a renewal
				// elsewhere supersedes this occurrence.
				IsExtended: occ.line.EndDate.Before(globalMax),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ProductCode != b.ProductCode {
			return a.ProductCode < b.ProductCode
		}
		if a.IsExtended != b.IsExtended {
			return !a.IsExtended
		}
		if a.Modifier != b.Modifier {
			return a.Modifier < b.Modifier
		}
		return a.ContributingRecordID < b.ContributingRecordID
	})
	return out
}

func accountIDOf(records []provisioning.Record, recordID string) string {
	for _, rec := range records {
		if rec.ID == recordID {
			return rec.AccountID
		}
	}
	return ""
}
