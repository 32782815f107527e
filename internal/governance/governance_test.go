package governance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var noon = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func TestLimiter_HourlyWindow(t *testing.T) {
	l := NewLimiter(3, 10, types.RateLimitState{})

	for i := 0; i < 3; i++ {
		require.True(t, l.CanInvestigate(noon))
		l.Record(noon.Add(time.Duration(i) * time.Minute))
	}
	assert.False(t, l.CanInvestigate(noon.Add(10*time.Minute)))

	// CanInvestigate never mutates.
	before := l.State()
	l.CanInvestigate(noon.Add(2 * time.Hour))
	assert.Equal(t, before, l.State())

	// Past the hourly reset the budget is back.
	later := noon.Add(61 * time.Minute)
	assert.True(t, l.CanInvestigate(later))
	l.Record(later)
	assert.Equal(t, 1, l.State().HourlyCount)
	assert.Equal(t, 4, l.State().DailyCount)
}

func TestLimiter_DailyWindow(t *testing.T) {
	l := NewLimiter(100, 2, types.RateLimitState{})
	l.Record(noon)
	l.Record(noon.Add(3 * time.Hour))
	assert.False(t, l.CanInvestigate(noon.Add(5*time.Hour)))
	assert.True(t, l.CanInvestigate(noon.Add(24*time.Hour)))

	h, d := l.Remaining(noon.Add(5 * time.Hour))
	assert.Equal(t, 100, h)
	assert.Equal(t, 0, d)
}

func TestDeduper(t *testing.T) {
	d := NewDeduper(6*time.Hour, 0.8, nil)
	d.Add("investigate recurring deployment verification failures", noon)

	prior, dup := d.IsDuplicate("investigate recurring deployment verification failures", noon.Add(time.Hour))
	assert.True(t, dup)
	assert.Equal(t, "investigate recurring deployment verification failures", prior)

	_, dup = d.IsDuplicate("review calendar scheduling conflicts", noon.Add(time.Hour))
	assert.False(t, dup)

	// After the window the entry is swept.
	_, dup = d.IsDuplicate("investigate recurring deployment verification failures", noon.Add(7*time.Hour))
	assert.False(t, dup)
	assert.Empty(t, d.Entries())
}

func TestQuietHours(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 6, 10, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end string
		t          time.Time
		want       bool
	}{
		{"overnight late", "22:00", "07:00", at(23, 30), true},
		{"overnight early", "22:00", "07:00", at(6, 59), true},
		{"overnight end exclusive", "22:00", "07:00", at(7, 0), false},
		{"overnight start inclusive", "22:00", "07:00", at(22, 0), true},
		{"overnight midday", "22:00", "07:00", at(12, 0), false},
		{"daytime inside", "09:00", "17:00", at(12, 0), true},
		{"daytime outside", "09:00", "17:00", at(18, 0), false},
		{"disabled", "08:00", "08:00", at(8, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuietHours(tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Active(tt.t))
		})
	}

	_, err := ParseQuietHours("25:00", "07:00")
	assert.ErrorIs(t, err, ErrInvalidQuietHours)
}

type collector struct {
	mu      sync.Mutex
	batches [][]Notification
}

func (c *collector) flush(b []Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestBatcher_Debounce(t *testing.T) {
	c := &collector{}
	b := NewBatcher(50*time.Millisecond, c.flush)
	defer b.Stop()

	b.Add(Notification{Topic: "a"})
	time.Sleep(20 * time.Millisecond)
	b.Add(Notification{Topic: "b"})
	time.Sleep(20 * time.Millisecond)
	b.Add(Notification{Topic: "c"})

	// Each Add restarted the timer, so nothing has flushed yet.
	assert.Equal(t, 0, c.count())

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	c.mu.Lock()
	assert.Len(t, c.batches[0], 3)
	c.mu.Unlock()
}

func TestBatcher_StopFlushes(t *testing.T) {
	c := &collector{}
	b := NewBatcher(time.Hour, c.flush)
	b.Add(Notification{Topic: "a"})
	assert.Equal(t, 1, b.Pending())

	b.Stop()
	assert.Equal(t, 1, c.count())

	b.Add(Notification{Topic: "dropped"})
	assert.Equal(t, 0, b.Pending())
}

func newService(t *testing.T, store storage.Storage, now time.Time, mutate func(*config.GovernanceConfig)) (*Service, *collector) {
	t.Helper()
	cfg := config.Default().Governance
	cfg.BatchSeconds = 3600
	if mutate != nil {
		mutate(&cfg)
	}
	c := &collector{}
	s, err := NewService(cfg, store, WithClock(func() time.Time { return now }), WithNotifier(c.flush))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	return s, c
}

func TestService_Request(t *testing.T) {
	s, c := newService(t, nil, noon, nil)
	ctx := context.Background()

	d, err := s.Request(ctx, "why do deployment checks keep failing")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.HourlyRemaining)

	d, err = s.Request(ctx, "why do deployment checks keep failing")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDuplicate, d.Reason)

	_, err = s.Request(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyTopic)

	s.Stop()
	assert.Equal(t, 1, c.count(), "stop flushes the queued notification")

	_, err = s.Request(ctx, "anything")
	assert.ErrorIs(t, err, ErrServiceStopped)
}

func TestService_RateLimited(t *testing.T) {
	s, _ := newService(t, nil, noon, func(c *config.GovernanceConfig) { c.MaxPerHour = 1 })
	defer s.Stop()
	ctx := context.Background()

	d, err := s.Request(ctx, "topic one about logging")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = s.Request(ctx, "entirely different subject matter")
	require.NoError(t, err)
	assert.Equal(t, ReasonRateLimited, d.Reason)
}

func TestService_QuietHours(t *testing.T) {
	night := time.Date(2026, 6, 10, 23, 15, 0, 0, time.UTC)
	s, _ := newService(t, nil, night, nil)
	defer s.Stop()

	d, err := s.Request(context.Background(), "late night idea")
	require.NoError(t, err)
	assert.Equal(t, ReasonQuietHours, d.Reason)
	assert.Equal(t, ReasonQuietHours, s.Check("late night idea").Reason)
}

func TestService_SaveOnStopAndReload(t *testing.T) {
	store := storage.NewFileStorage(storage.WithBaseDir(t.TempDir()))
	require.NoError(t, store.Init())

	s, _ := newService(t, store, noon, nil)
	_, err := s.Request(context.Background(), "persisted topic about retries")
	require.NoError(t, err)
	s.Stop()
	s.Stop()

	reloaded, _ := newService(t, store, noon.Add(time.Minute), nil)
	defer reloaded.Stop()
	d := reloaded.Check("persisted topic about retries")
	assert.Equal(t, ReasonDuplicate, d.Reason)
	assert.Equal(t, 2, d.HourlyRemaining)
}

func TestService_InvalidQuietHours(t *testing.T) {
	cfg := config.Default().Governance
	cfg.QuietStart = "late"
	_, err := NewService(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidQuietHours)
}

func TestService_CanceledContext(t *testing.T) {
	s, _ := newService(t, nil, noon, nil)
	defer s.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Request(ctx, "topic")
	assert.ErrorIs(t, err, context.Canceled)
}
