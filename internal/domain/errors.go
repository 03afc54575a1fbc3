package domain

import "errors"

// Sentinel errors returned across package boundaries. Callers use
// errors.Is to branch on disposition rather than inspecting strings.
var (
	// ErrInvalidSample is returned by validation when a sample fails a
	// range or shape check from the wire contract.
	ErrInvalidSample = errors.New("domain: invalid sample")

	// ErrConflict is returned when an operation would violate a
	// uniqueness invariant (e.g. starting a session for a vehicle that
	// already has one active).
	ErrConflict = errors.New("domain: conflict")

	// ErrNotFound is returned when a lookup or a state transition
	// targets a row that does not exist.
	ErrNotFound = errors.New("domain: not found")

	// ErrRetryable marks an error as safe to retry without operator
	// intervention (e.g. a transient database error during a batch
	// write). Wrap the underlying cause with fmt.Errorf("...: %w", ...).
	ErrRetryable = errors.New("domain: retryable")
)
