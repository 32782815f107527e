// Package governance budgets self-initiated background work: fixed-window
// rate limits, topic deduplication, quiet hours and debounced notification
// batching, combined in a single process-wide Service.
package governance

import (
	"time"

	"github.com/boshu2/driftwatch/internal/types"
)

// Limiter enforces independent hourly and daily fixed windows. Windows reset
// lazily when read past their reset time; there is no background timer.
type Limiter struct {
	maxPerHour int
	maxPerDay  int
	state      types.RateLimitState
}

// NewLimiter creates a limiter from persisted state (zero value is fine).
func NewLimiter(maxPerHour, maxPerDay int, state types.RateLimitState) *Limiter {
	return &Limiter{maxPerHour: maxPerHour, maxPerDay: maxPerDay, state: state}
}

// effective returns the counts that apply at now without mutating state.
func (l *Limiter) effective(now time.Time) (hourly, daily int) {
	hourly, daily = l.state.HourlyCount, l.state.DailyCount
	if !now.Before(l.state.HourlyResetTime) {
		hourly = 0
	}
	if !now.Before(l.state.DailyResetTime) {
		daily = 0
	}
	return hourly, daily
}

// CanInvestigate reports whether both windows have budget left at now.
func (l *Limiter) CanInvestigate(now time.Time) bool {
	hourly, daily := l.effective(now)
	return hourly < l.maxPerHour && daily < l.maxPerDay
}

// Record counts one investigation at now, opening a fresh window for any
// counter whose window has elapsed.
func (l *Limiter) Record(now time.Time) {
	if !now.Before(l.state.HourlyResetTime) {
		l.state.HourlyCount = 0
		l.state.HourlyResetTime = now.Add(time.Hour)
	}
	if !now.Before(l.state.DailyResetTime) {
		l.state.DailyCount = 0
		l.state.DailyResetTime = now.Add(24 * time.Hour)
	}
	l.state.HourlyCount++
	l.state.DailyCount++
}

// Remaining returns the budget left in each window at now.
func (l *Limiter) Remaining(now time.Time) (hourly, daily int) {
	h, d := l.effective(now)
	return max(l.maxPerHour-h, 0), max(l.maxPerDay-d, 0)
}

// State returns the persistable counters.
func (l *Limiter) State() types.RateLimitState {
	return l.state
}
