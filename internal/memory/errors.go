package memory

import "errors"

// Sentinel errors for the memory package.
var (
	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("memory: unknown backend")

	// ErrEmptyContent is returned when storing blank content.
	ErrEmptyContent = errors.New("memory: content cannot be empty")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("memory: store closed")
)
