package types

import "errors"

// Sentinel errors shared across packages. Using sentinels allows callers to
// match with errors.Is for reliable error handling.
var (
	// ErrVectorNotFound is returned when a growth vector ID is unknown.
	ErrVectorNotFound = errors.New("growth vector not found")

	// ErrEmptyID is returned when an operation needs a non-empty identifier.
	ErrEmptyID = errors.New("id must not be empty")

	// ErrAgentIDInvalid is returned when an agent ID is unsafe for use in paths.
	ErrAgentIDInvalid = errors.New("agent id contains invalid characters (only alphanumeric, hyphen, underscore allowed)")
)
