package vectors

import "errors"

// Sentinel errors for the vectors package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrNoStorage is returned when a Loader is built without a storage backend.
	ErrNoStorage = errors.New("vector loader requires storage")
)
