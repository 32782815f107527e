// Package entropy turns a turn's text and detector signals into a composite
// turbulence score, tracks how long it stays elevated, and keeps the
// observation log.
package entropy

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/ring"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/textutil"
	"github.com/boshu2/driftwatch/internal/types"
)

// Clause weights.
const (
	weightCorrection     = 0.4
	weightNovelPerHit    = 0.15
	capNovelPerPattern   = 0.3
	weightEmotional      = 0.3
	weightParadox        = 0.2
	weightRealization    = 0.2
	weightTemporal       = 0.3
	weightQualityDecay   = 0.2
	weightQuietIntegrate = 0.15
	bonusExcellent       = 0.1
	penaltyPoor          = -0.2

	// turbulentFloor is the score a prior observation must exceed to make a
	// later reflective turn count as quiet integration.
	turbulentFloor = 0.6

	// sustainedFraction of the critical threshold starts sustained tracking.
	sustainedFraction = 0.8

	historySize = 5
)

// Trigger names recorded for each clause that fired.
const (
	TriggerCorrection       = "correction"
	TriggerNovelConcept     = "novel_concept"
	TriggerEmotional        = "emotional"
	TriggerParadox          = "paradox"
	TriggerRealization      = "realization"
	TriggerTemporalMismatch = "temporal_mismatch"
	TriggerQualityDecay     = "quality_decay"
	TriggerRecursiveMeta    = "recursive_meta"
	TriggerQuietIntegration = "quiet_integration"
	TriggerContextExcellent = "context_excellent"
	TriggerContextPoor      = "context_poor"
)

// ContextQuality is an out-of-band judgement the caller may attach to a turn.
type ContextQuality string

const (
	QualityNone      ContextQuality = ""
	QualityExcellent ContextQuality = "excellent"
	QualityPoor      ContextQuality = "poor"
)

// Breakdown is a score with the clauses that produced it.
type Breakdown struct {
	Score    float64  `json:"score"`
	Triggers []string `json:"triggers"`
}

// SustainedStatus reports sustained-entropy tracking after one turn.
type SustainedStatus struct {
	Sustained bool    `json:"sustained"`
	Turns     int     `json:"turns"`
	Minutes   float64 `json:"minutes"`
}

type novelPattern struct {
	expr string
	re   *regexp.Regexp
}

// Scorer computes composite entropy for one agent. It is not safe for
// concurrent use; each agent pipeline owns its own instance.
type Scorer struct {
	cfg config.EntropyConfig

	correction  textutil.PhraseSet
	emotional   textutil.PhraseSet
	paradox     textutil.PhraseSet
	realization textutil.PhraseSet
	settling    textutil.PhraseSet
	novel       []novelPattern

	history        *ring.Buffer[types.HistoryPoint]
	lastScore      float64
	sustainedTurns int
	sustainedStart *time.Time

	store  storage.Storage
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithStorage enables the durable observation log.
func WithStorage(s storage.Storage) Option {
	return func(sc *Scorer) {
		sc.store = s
	}
}

// WithLogger sets the logger used for best-effort persistence failures.
func WithLogger(l *zap.Logger) Option {
	return func(sc *Scorer) {
		sc.logger = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(sc *Scorer) {
		sc.now = now
	}
}

// New compiles the phrase tables and returns a scorer with empty state.
func New(cfg config.EntropyConfig, p config.Patterns, opts ...Option) (*Scorer, error) {
	sc := &Scorer{
		cfg:         cfg,
		correction:  textutil.NewPhraseSet(p.Correction),
		emotional:   textutil.NewPhraseSet(p.Emotional),
		paradox:     textutil.NewPhraseSet(p.Paradox),
		realization: textutil.NewPhraseSet(p.Realization),
		settling:    textutil.NewPhraseSet(p.Settling),
		history:     ring.New[types.HistoryPoint](historySize),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, expr := range p.NovelConcepts {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, expr, err)
		}
		sc.novel = append(sc.novel, novelPattern{expr: expr, re: re})
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Score returns the composite entropy of one turn and stores it as the last
// score. The sum is deliberately not clamped.
func (sc *Scorer) Score(userMessage, responseText string, dr types.DetectorResult, quality ContextQuality) float64 {
	return sc.ScoreDetailed(userMessage, responseText, dr, quality).Score
}

// ScoreDetailed is Score plus the names of the clauses that fired.
func (sc *Scorer) ScoreDetailed(userMessage, responseText string, dr types.DetectorResult, quality ContextQuality) Breakdown {
	var b Breakdown
	add := func(trigger string, v float64) {
		b.Score += v
		b.Triggers = append(b.Triggers, trigger)
	}

	if sc.correction.Match(userMessage) {
		add(TriggerCorrection, weightCorrection)
	}
	if novel := sc.novelScore(userMessage + " " + responseText); novel > 0 {
		add(TriggerNovelConcept, novel)
	}
	if sc.emotional.Match(userMessage) {
		add(TriggerEmotional, weightEmotional)
	}
	if sc.paradox.Match(responseText) {
		add(TriggerParadox, weightParadox)
	}
	if sc.realization.Match(responseText) {
		add(TriggerRealization, weightRealization)
	}
	if dr.TemporalMismatch {
		add(TriggerTemporalMismatch, weightTemporal)
	}
	if dr.QualityDecay {
		add(TriggerQualityDecay, weightQualityDecay)
	}
	if dr.RecursiveMetaBonus > 0 {
		add(TriggerRecursiveMeta, dr.RecursiveMetaBonus)
	}
	if sc.quietIntegration(responseText) {
		add(TriggerQuietIntegration, weightQuietIntegrate)
	}
	switch quality {
	case QualityExcellent:
		add(TriggerContextExcellent, bonusExcellent)
	case QualityPoor:
		add(TriggerContextPoor, penaltyPoor)
	}

	sc.lastScore = b.Score
	return b
}

// novelScore sums min(cap, 0.15 x hits) over each distinct pattern.
func (sc *Scorer) novelScore(text string) float64 {
	total := 0.0
	for _, p := range sc.novel {
		hits := len(p.re.FindAllStringIndex(text, -1))
		if hits == 0 {
			continue
		}
		v := weightNovelPerHit * float64(hits)
		if v > capNovelPerPattern {
			v = capNovelPerPattern
		}
		total += v
	}
	return total
}

// quietIntegration reports a reflective response following a turbulent
// observation still inside the decay window.
func (sc *Scorer) quietIntegration(responseText string) bool {
	if !sc.settling.Match(responseText) {
		return false
	}
	cutoff := sc.now().Add(-sc.cfg.QuietDecay())
	for _, h := range sc.history.Slice() {
		if h.Entropy > turbulentFloor && !h.Timestamp.Before(cutoff) {
			return true
		}
	}
	return false
}

// LastScore returns the most recent composite score.
func (sc *Scorer) LastScore() float64 {
	return sc.lastScore
}

// TrackSustained advances the sustained-entropy state machine. Any score at
// or below the floor resets both the turn counter and the timer.
func (sc *Scorer) TrackSustained(score float64) SustainedStatus {
	floor := sustainedFraction * sc.cfg.CriticalThreshold
	if score <= floor {
		sc.sustainedTurns = 0
		sc.sustainedStart = nil
		return SustainedStatus{}
	}

	now := sc.now()
	sc.sustainedTurns++
	if sc.sustainedStart == nil {
		start := now
		sc.sustainedStart = &start
	}
	elapsed := now.Sub(*sc.sustainedStart)
	return SustainedStatus{
		Sustained: elapsed >= sc.cfg.SustainedDuration(),
		Turns:     sc.sustainedTurns,
		Minutes:   elapsed.Minutes(),
	}
}

// Critical reports whether score reaches the critical threshold.
func (sc *Scorer) Critical(score float64) bool {
	return score >= sc.cfg.CriticalThreshold
}

// History returns the compact recent-history ring, oldest first.
func (sc *Scorer) History() []types.HistoryPoint {
	return sc.history.Slice()
}

// State snapshots the scorer's mutable state.
func (sc *Scorer) State() types.EntropyState {
	st := types.EntropyState{
		LastScore:      sc.lastScore,
		SustainedTurns: sc.sustainedTurns,
		RecentHistory:  sc.history.Slice(),
	}
	if sc.sustainedStart != nil {
		start := *sc.sustainedStart
		st.SustainedStartTime = &start
	}
	return st
}

// Restore replaces the scorer's mutable state.
func (sc *Scorer) Restore(st types.EntropyState) {
	sc.lastScore = st.LastScore
	sc.sustainedTurns = st.SustainedTurns
	sc.sustainedStart = nil
	if st.SustainedStartTime != nil {
		start := *st.SustainedStartTime
		sc.sustainedStart = &start
	}
	sc.history = ring.From(historySize, st.RecentHistory)
}
