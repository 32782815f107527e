package entropy

import "errors"

// Sentinel errors for the entropy package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrInvalidPattern is returned when a novel-concept regex does not compile.
	ErrInvalidPattern = errors.New("invalid novel-concept pattern")
)
