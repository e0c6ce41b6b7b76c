package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, source clients, and other
// infrastructure layers return these (optionally wrapped) so services can
// translate them into run-level outcomes without string matching.
//
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a concurrent write won the race (retry once, then warn)
// - ErrSourceUnavailable: the upstream record source cannot be reached;
//   the run aborts cleanly and is retried on the next tick
// - ErrMalformedRecord: a single record failed normalization; it is logged
//   and skipped, never failing the batch
// - ErrReviewProtected: an upsert would overwrite human review state;
//   rejected and logged as a bug, never silently applied
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrReviewProtected   = errors.New("review state protected")
)
