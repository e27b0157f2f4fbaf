package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so callers can branch with errors.Is without inspecting engine error types.
//
// These represent factual states about stored data, not validation failures:
// - ErrNotFound: no document matched a unique lookup
// - ErrAmbiguous: a lookup that expected at most one match found several
// - ErrConflict: the caller's version token is stale; re-read and retry
// - ErrDuplicateKey: a uniqueness constraint rejected an insert
//
// ErrInvalidArgument is the exception: it flags malformed caller input and is
// returned before any storage call is made.
var (
	ErrNotFound        = errors.New("not found")
	ErrAmbiguous       = errors.New("ambiguous result")
	ErrConflict        = errors.New("conflict")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrInvalidArgument = errors.New("invalid argument")
)
