package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity already exists or a unique constraint was hit
// - ErrNothingPending: no pending release marker for the aggregate
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, violated invariants), use
// pkg/domain-errors directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrNothingPending = errors.New("nothing pending")
	ErrUnavailable    = errors.New("unavailable")
)
