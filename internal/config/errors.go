package config

import "errors"

// Sentinel errors for the config package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrEmbeddedPatterns is returned when the compiled-in pattern table fails to parse.
	ErrEmbeddedPatterns = errors.New("embedded patterns are malformed")

	// ErrInvalidPattern is returned when a novel-concept regex does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrThresholdOrder is returned when meta thresholds are not strictly ascending.
	ErrThresholdOrder = errors.New("meta thresholds must ascend: warning < danger < critical")

	// ErrOutOfRange is returned when a ratio or count falls outside its valid range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidClock is returned when a quiet-hours bound is not HH:MM.
	ErrInvalidClock = errors.New("invalid time of day (want HH:MM)")

	// ErrUnknownBackend is returned for an unrecognized memory backend.
	ErrUnknownBackend = errors.New("unknown memory backend")
)
