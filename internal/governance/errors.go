package governance

import "errors"

// Sentinel errors for the governance package. Using sentinels instead of
// ad-hoc fmt.Errorf allows callers to match with errors.Is for reliable
// error handling.
var (
	// ErrInvalidQuietHours is returned when a quiet-hours bound is not HH:MM.
	ErrInvalidQuietHours = errors.New("quiet hours must be HH:MM")

	// ErrServiceStopped is returned by Request after Stop.
	ErrServiceStopped = errors.New("investigation service stopped")

	// ErrEmptyTopic is returned when an investigation topic is blank.
	ErrEmptyTopic = errors.New("investigation topic cannot be empty")
)
