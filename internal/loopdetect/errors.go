package loopdetect

import "errors"

// Sentinel errors for the loopdetect package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrInvalidGlob is returned when an exempt or read tool pattern does not compile.
	ErrInvalidGlob = errors.New("invalid tool glob")
)
