package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and chain clients return
// these (optionally wrapped) so services can translate them into domain
// errors with the right code.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: optimistic version check failed, a concurrent writer won
// - ErrUnavailable: endpoint or backend temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
