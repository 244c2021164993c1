package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrStaleVersion indicates an optimistic-concurrency conflict: the caller's
	// expected version no longer matches storage and the write was refused.
	ErrStaleVersion = errors.New("stale version")
	// ErrValidation indicates input rejected before any state mutation.
	ErrValidation = errors.New("validation failed")
	// ErrWorkflow indicates a state transition attempted from an invalid state.
	ErrWorkflow = errors.New("workflow transition rejected")
)
