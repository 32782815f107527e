package monitor

import "errors"

// Sentinel errors for the monitor package.
var (
	// ErrRegistryClosed is returned by Registry.Get after Close.
	ErrRegistryClosed = errors.New("agent registry closed")

	// ErrNilConfig is returned when an agent is built without configuration.
	ErrNilConfig = errors.New("agent requires configuration")
)
