package entropy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/types"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func newScorer(t *testing.T, opts ...Option) *Scorer {
	t.Helper()
	cfg := config.Default()
	sc, err := New(cfg.Entropy, cfg.Patterns, opts...)
	require.NoError(t, err)
	return sc
}

func TestScore_CorrectionAlone(t *testing.T) {
	sc := newScorer(t)
	got := sc.ScoreDetailed("actually that's wrong", "", types.DetectorResult{}, QualityNone)

	assert.Equal(t, 0.4, got.Score)
	assert.Equal(t, []string{TriggerCorrection}, got.Triggers)
	assert.Equal(t, 0.4, sc.LastScore())
}

func TestScore_EmptyInput(t *testing.T) {
	sc := newScorer(t)
	assert.Zero(t, sc.Score("", "", types.DetectorResult{}, QualityNone))
}

func TestScore_Clauses(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		response string
		dr       types.DetectorResult
		quality  ContextQuality
		want     float64
	}{
		{"emotional", "I feel lost here", "", types.DetectorResult{}, QualityNone, 0.3},
		{"paradox", "", "Both are true at the same time.", types.DetectorResult{}, QualityNone, 0.2},
		{"realization", "", "I realize the cache was stale.", types.DetectorResult{}, QualityNone, 0.2},
		{"temporal", "", "", types.DetectorResult{TemporalMismatch: true}, QualityNone, 0.3},
		{"quality decay", "", "", types.DetectorResult{QualityDecay: true}, QualityNone, 0.2},
		{"meta bonus verbatim", "", "", types.DetectorResult{RecursiveMetaBonus: 0.45}, QualityNone, 0.45},
		{"excellent context", "", "", types.DetectorResult{}, QualityExcellent, 0.1},
		{"poor context", "", "", types.DetectorResult{}, QualityPoor, -0.2},
		{"one novel hit", "what if we skip it", "", types.DetectorResult{}, QualityNone, 0.15},
		{"novel hits capped per pattern", "what if? what if? what if?", "", types.DetectorResult{}, QualityNone, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScorer(t)
			assert.InDelta(t, tt.want, sc.Score(tt.user, tt.response, tt.dr, tt.quality), 1e-9)
		})
	}
}

func TestScore_NovelPatternsAddIndependently(t *testing.T) {
	sc := newScorer(t)
	// "what if" (x1) and "thought experiment" (x1), counted over user+response.
	got := sc.Score("what if time stopped", "That is a thought experiment.", types.DetectorResult{}, QualityNone)
	assert.InDelta(t, 0.3, got, 1e-9)
}

func TestScore_Unclamped(t *testing.T) {
	sc := newScorer(t)
	dr := types.DetectorResult{TemporalMismatch: true, QualityDecay: true, RecursiveMetaBonus: 0.45}
	got := sc.Score("actually that's wrong and I feel frustrated", "I realize this is a paradox", dr, QualityNone)
	// 0.4 + 0.3 + 0.2 + 0.2 + 0.3 + 0.2 + 0.45
	assert.InDelta(t, 2.05, got, 1e-9)
}

func TestScore_Deterministic(t *testing.T) {
	clock := newClock()
	a := newScorer(t, WithClock(clock.Now))
	b := newScorer(t, WithClock(clock.Now))
	dr := types.DetectorResult{RecursiveMetaBonus: 0.15}

	for _, s := range []*Scorer{a, b} {
		s.LogObservation(types.Observation{Timestamp: clock.Now(), CompositeScore: 0.9})
	}
	user, resp := "what if we're wrong", "I'm sitting with that; it feels clearer."
	assert.Equal(t, a.Score(user, resp, dr, QualityNone), b.Score(user, resp, dr, QualityNone))
	assert.Equal(t, a.Score(user, resp, dr, QualityNone), a.Score(user, resp, dr, QualityNone))
}

func TestQuietIntegration(t *testing.T) {
	clock := newClock()
	sc := newScorer(t, WithClock(clock.Now))
	calm := "I'm sitting with what you said."

	assert.Zero(t, sc.Score("", calm, types.DetectorResult{}, QualityNone), "no turbulent history yet")

	sc.LogObservation(types.Observation{Timestamp: clock.Now(), CompositeScore: 0.5})
	assert.Zero(t, sc.Score("", calm, types.DetectorResult{}, QualityNone), "0.5 is not turbulent")

	sc.LogObservation(types.Observation{Timestamp: clock.Now(), CompositeScore: 0.9})
	clock.Advance(2 * time.Hour)
	assert.InDelta(t, 0.15, sc.Score("", calm, types.DetectorResult{}, QualityNone), 1e-9)
	assert.Zero(t, sc.Score("", "Here is the diff.", types.DetectorResult{}, QualityNone), "needs settling language")

	clock.Advance(5 * time.Hour)
	assert.Zero(t, sc.Score("", calm, types.DetectorResult{}, QualityNone), "outside the 6h decay window")
}

func TestQuietIntegration_RingHoldsFive(t *testing.T) {
	clock := newClock()
	sc := newScorer(t, WithClock(clock.Now))
	sc.LogObservation(types.Observation{Timestamp: clock.Now(), CompositeScore: 1.2})
	for i := 0; i < 5; i++ {
		sc.LogObservation(types.Observation{Timestamp: clock.Now(), CompositeScore: 0.1})
	}
	assert.Len(t, sc.History(), 5)
	assert.Zero(t, sc.Score("", "sitting with it", types.DetectorResult{}, QualityNone), "turbulent point was evicted")
}

func TestTrackSustained_DurationThreshold(t *testing.T) {
	clock := newClock()
	sc := newScorer(t, WithClock(clock.Now))

	var st SustainedStatus
	for i := 0; i < 5; i++ {
		st = sc.TrackSustained(0.9)
		assert.Falsef(t, st.Sustained, "minute %d", i*10)
		clock.Advance(10 * time.Minute)
	}
	// Elapsed is now 50 minutes since the first elevated turn.
	st = sc.TrackSustained(0.85)
	assert.True(t, st.Sustained)
	assert.Equal(t, 6, st.Turns)
	assert.InDelta(t, 50, st.Minutes, 1e-9)
}

func TestTrackSustained_JustUnderDuration(t *testing.T) {
	clock := newClock()
	sc := newScorer(t, WithClock(clock.Now))

	sc.TrackSustained(0.95)
	clock.Advance(44*time.Minute + 59*time.Second)
	assert.False(t, sc.TrackSustained(0.95).Sustained)

	clock.Advance(time.Second)
	assert.True(t, sc.TrackSustained(0.95).Sustained)
}

func TestTrackSustained_SingleDipResets(t *testing.T) {
	clock := newClock()
	sc := newScorer(t, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		sc.TrackSustained(1.5)
		clock.Advance(10 * time.Minute)
	}
	// 0.8 x critical(1.0) is the floor; equal counts as a dip.
	assert.Equal(t, SustainedStatus{}, sc.TrackSustained(0.8))

	st := sc.TrackSustained(0.9)
	assert.False(t, st.Sustained)
	assert.Equal(t, 1, st.Turns)
	assert.Zero(t, st.Minutes)
}

func TestStateRestoreRoundTrip(t *testing.T) {
	clock := newClock()
	sc := newScorer(t, WithClock(clock.Now))
	sc.Score("actually that's wrong", "", types.DetectorResult{}, QualityNone)
	sc.TrackSustained(0.9)
	sc.LogObservation(types.Observation{Timestamp: clock.Now(), CompositeScore: 0.9})

	st := sc.State()
	other := newScorer(t, WithClock(clock.Now))
	other.Restore(st)

	assert.Equal(t, st, other.State())
	clock.Advance(45 * time.Minute)
	assert.True(t, other.TrackSustained(0.9).Sustained, "restored timer keeps running")
}

func TestLogObservation_PrunesToHalf(t *testing.T) {
	store := storage.NewFileStorage(storage.WithBaseDir(t.TempDir()))
	cfg := config.Default()
	cfg.Entropy.LogCapacity = 10
	sc, err := New(cfg.Entropy, cfg.Patterns, WithStorage(store))
	require.NoError(t, err)

	base := newClock().Now()
	for i := 0; i < 10; i++ {
		sc.LogObservation(types.Observation{Timestamp: base.Add(time.Duration(i) * time.Minute), CompositeScore: float64(i)})
	}
	n, err := store.CountLines(storage.ObservationsFile)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "at capacity, not over it")

	sc.LogObservation(types.Observation{Timestamp: base.Add(time.Hour), CompositeScore: 10})
	n, err = store.CountLines(storage.ObservationsFile)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

// brokenStore fails every write.
type brokenStore struct{ storage.Storage }

var errDisk = errors.New("disk full")

func (brokenStore) AppendJSONL(string, any) error { return errDisk }

func TestLogObservation_StoreFailureIsSwallowed(t *testing.T) {
	sc := newScorer(t, WithStorage(brokenStore{}))
	assert.NotPanics(t, func() {
		sc.LogObservation(types.Observation{CompositeScore: 0.7})
	})
	assert.Len(t, sc.History(), 1, "in-memory ring still updated")
}

func TestNew_InvalidPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Patterns.NovelConcepts = []string{"(broken"}
	_, err := New(cfg.Entropy, cfg.Patterns)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestShannon(t *testing.T) {
	assert.Zero(t, Shannon(""))
	assert.Zero(t, Shannon("same same same"))
	assert.InDelta(t, 2.0, Shannon("alpha beta gamma delta"), 1e-9)
}
