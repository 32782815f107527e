package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrBaseDirRequired is returned when a FileStorage has no base directory.
	ErrBaseDirRequired = errors.New("base directory is required")

	// ErrInvalidKeep is returned when TruncateJSONL is asked to keep < 0 lines.
	ErrInvalidKeep = errors.New("keep must be >= 0")
)
