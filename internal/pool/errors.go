package pool

import "errors"

// Sentinel errors for common pool operations.
var (
	// ErrEmptyDescription is returned when a candidate has no description.
	ErrEmptyDescription = errors.New("candidate description cannot be empty")
	// ErrCandidateNotFound is returned when a candidate cannot be located in the pool.
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrAlreadyValidated is returned when validating a vector that is already injectable.
	ErrAlreadyValidated = errors.New("vector is already validated")
)
