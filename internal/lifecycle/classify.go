// Package lifecycle assigns expiration states to rolled-up entitlements.
// Classification is a pure function of the roll-up, the analysis date, and
// the lookahead window so tests fix the clock instead of the clock fixing
// the tests.
package lifecycle

import (
	"time"

	"deployassist/internal/provisioning"
	"deployassist/internal/rollup"
)

// State is a product's lifecycle classification.
type State string

const (
	StateActive       State = "Active"
	StateExpiringSoon State = "ExpiringSoon"
	StateExpired      State = "Expired"
)

// Classified is a rolled-up entitlement plus its state. An extended
// occurrence keeps its computed state for inventory views but is excluded
// from expiring/expired alerting.
type Classified struct {
	rollup.Entitlement
	State State `json:"state"`
}

// Alertable reports whether this entry belongs in expiring/expired alert
// views. Extensions are suppressed there but retained for completeness.
func (c Classified) Alertable() bool {
	return !c.IsExtended && (c.State == StateExpired || c.State == StateExpiringSoon)
}

// Classify assigns a state from the effective end date. today is compared at
// calendar-date precision; window extends forward from today inclusive.
func Classify(ent rollup.Entitlement, today time.Time, window time.Duration) Classified {
	today = provisioning.Day(today)
	end := provisioning.Day(ent.EffectiveEndDate)

	state := StateActive
	switch {
	case end.Before(today):
		state = StateExpired
	case !end.After(today.Add(window)):
		state = StateExpiringSoon
	}

	return Classified{Entitlement: ent, State: state}
}

// ClassifyAll classifies every rolled-up occurrence.
func ClassifyAll(ents []rollup.Entitlement, today time.Time, window time.Duration) []Classified {
	out := make([]Classified, 0, len(ents))
	for _, ent := range ents {
		out = append(out, Classify(ent, today, window))
	}
	return out
}

// Summary holds the per-account counts the presentation layer shows next to
// an entitlement inventory. Extended occurrences count only toward Extended.
type Summary struct {
	Active       int `json:"active"`
	ExpiringSoon int `json:"expiringSoon"`
	Expired      int `json:"expired"`
	Extended     int `json:"extended"`
}

// Summarize tallies classified entitlements into a Summary.
func Summarize(classified []Classified) Summary {
	var s Summary
	for _, c := range classified {
		if c.IsExtended {
			s.Extended++
			continue
		}
		switch c.State {
		case StateActive:
			s.Active++
		case StateExpiringSoon:
			s.ExpiringSoon++
		case StateExpired:
			s.Expired++
		}
	}
	return s
}
