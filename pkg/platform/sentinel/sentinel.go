package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the request ledger
// return these (optionally wrapped) so services can translate them into
// actor-facing domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: concurrent mutation lost the race
// - ErrAlreadyDecided: request already flipped out of Pending
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyDecided = errors.New("already decided")
	ErrInvalidState   = errors.New("invalid state")
	ErrUnavailable    = errors.New("unavailable")
)
