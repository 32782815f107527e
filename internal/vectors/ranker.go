package vectors

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/textutil"
	"github.com/boshu2/driftwatch/internal/types"
)

// Scoring weights.
const (
	weightLexical    = 0.6
	weightOverlap    = 0.7
	weightPhrase     = 0.3
	weightRecencyMax = 0.1
	weightConfidence = 0.1

	recencyHorizon = 7 * 24 * time.Hour
)

// Alignment tiers, selected by entropy level.
const (
	alignLow  = 0.10
	alignMid  = 0.15
	alignHigh = 0.20

	alignMidFloor  = 0.6
	alignHighFloor = 0.8
)

// FeedbackSource exposes the per-vector feedback history.
type FeedbackSource interface {
	Lookup(vectorID string) (types.FeedbackRecord, bool)
}

// Options tunes one ranking call.
type Options struct {
	// Triggers are the scorer clauses that fired on the latest turn. A vector
	// whose entropy source is among them is aligned with the current entropy.
	Triggers []string

	// MaxInjected overrides the configured limit when > 0.
	MaxInjected int
}

// Ranked is a vector with its relevance score and the components behind it.
type Ranked struct {
	Vector    types.GrowthVector `json:"vector"`
	Score     float64            `json:"score"`
	Lexical   float64            `json:"lexical"`
	Alignment float64            `json:"alignment"`
	Recency   float64            `json:"recency"`
	Feedback  float64            `json:"feedback"`
	Fallback  bool               `json:"fallback,omitempty"`
}

// Ranker scores growth vectors against the current turn.
type Ranker struct {
	cfg        config.VectorsConfig
	loader     *Loader
	feedback   FeedbackSource
	correlated map[string]struct{}
	logger     *zap.Logger
	now        func() time.Time
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithFeedback attaches the feedback history used for score adjustment.
func WithFeedback(fs FeedbackSource) RankerOption {
	return func(r *Ranker) {
		r.feedback = fs
	}
}

// WithRankerLogger sets the logger.
func WithRankerLogger(logger *zap.Logger) RankerOption {
	return func(r *Ranker) {
		r.logger = logger
	}
}

// WithRankerClock overrides time.Now.
func WithRankerClock(now func() time.Time) RankerOption {
	return func(r *Ranker) {
		r.now = now
	}
}

// NewRanker creates a ranker over the loader's collection.
func NewRanker(cfg config.VectorsConfig, loader *Loader, opts ...RankerOption) *Ranker {
	r := &Ranker{
		cfg:        cfg,
		loader:     loader,
		correlated: make(map[string]struct{}, len(cfg.CorrelatedSources)),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, s := range cfg.CorrelatedSources {
		r.correlated[s] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relevant returns at most MaxInjected vectors for injection. A load failure
// is logged and yields no vectors.
func (r *Ranker) Relevant(ctx context.Context, userMessage string, entropyScore float64, opts Options) []Ranked {
	c, err := r.loader.Load(ctx)
	if err != nil {
		r.logger.Warn("load growth vectors failed", zap.Error(err))
		return nil
	}
	return r.Rank(c.Injectable(), c.PriorityQueue, userMessage, entropyScore, opts)
}

// Rank scores candidates directly. Relevant is Rank over the loaded
// collection's injectable vectors.
func (r *Ranker) Rank(candidates []types.GrowthVector, pq PriorityQueue, userMessage string, entropyScore float64, opts Options) []Ranked {
	limit := r.cfg.MaxInjected
	if opts.MaxInjected > 0 {
		limit = opts.MaxInjected
	}
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}

	if strings.TrimSpace(userMessage) == "" {
		return fallback(candidates, pq, limit)
	}

	in := newTurnInput(userMessage, entropyScore, opts.Triggers)

	var out []Ranked
	for _, v := range candidates {
		rk := r.score(v, in)
		if rk.Score >= r.cfg.RelevanceThreshold {
			out = append(out, rk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Vector.ID < out[j].Vector.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// turnInput is the message-side data shared by every vector's score.
type turnInput struct {
	words    textutil.WordSet
	norm     string
	entropy  float64
	triggers map[string]struct{}
}

func newTurnInput(userMessage string, entropy float64, triggers []string) turnInput {
	in := turnInput{
		words:    textutil.Words(userMessage),
		norm:     " " + strings.Join(textutil.Tokens(userMessage), " ") + " ",
		entropy:  entropy,
		triggers: make(map[string]struct{}, len(triggers)),
	}
	for _, t := range triggers {
		in.triggers[t] = struct{}{}
	}
	return in
}

func (r *Ranker) score(v types.GrowthVector, in turnInput) Ranked {
	rk := Ranked{Vector: v}

	vecWords := textutil.Words(v.Description + " " + v.IntegrationHypothesis)
	rk.Lexical = weightOverlap*textutil.OverlapMin(in.words, vecWords) +
		weightPhrase*phraseScore(v.Description, in.norm)

	rk.Alignment = r.alignment(v.EntropySource, in.entropy, in.triggers)
	rk.Recency = r.recency(v.Detected)
	rk.Feedback = r.feedbackAdjustment(v.ID)

	total := weightLexical*rk.Lexical + rk.Alignment + rk.Recency + weightConfidence*v.Weight + rk.Feedback
	rk.Score = clamp(total, 0, 1)
	return rk
}

// phraseScore is the weighted share of description bigrams and trigrams that
// occur verbatim in the normalized message. Trigrams count double.
func phraseScore(description, msgNorm string) float64 {
	tokens := textutil.Tokens(description)
	bigrams := textutil.NGrams(tokens, 2)
	trigrams := textutil.NGrams(tokens, 3)
	denom := float64(len(bigrams) + 2*len(trigrams))
	if denom == 0 {
		return 0
	}
	hits := 0.0
	for _, g := range bigrams {
		if strings.Contains(msgNorm, " "+g+" ") {
			hits++
		}
	}
	for _, g := range trigrams {
		if strings.Contains(msgNorm, " "+g+" ") {
			hits += 2
		}
	}
	return hits / denom
}

func (r *Ranker) alignment(source string, entropy float64, triggers map[string]struct{}) float64 {
	if source == "" || entropy <= r.cfg.EntropyGate {
		return 0
	}
	_, fired := triggers[source]
	_, correlated := r.correlated[source]
	if !fired && !correlated {
		return 0
	}
	switch {
	case entropy > alignHighFloor:
		return alignHigh
	case entropy > alignMidFloor:
		return alignMid
	default:
		return alignLow
	}
}

func (r *Ranker) recency(detected time.Time) float64 {
	if detected.IsZero() {
		return 0
	}
	age := r.now().Sub(detected)
	if age < 0 {
		age = 0
	}
	frac := 1 - float64(age)/float64(recencyHorizon)
	if frac < 0 {
		return 0
	}
	return weightRecencyMax * frac
}

// feedbackAdjustment boosts vectors that historically lowered entropy and
// penalizes ones that raised it, bounded by the configured cap.
func (r *Ranker) feedbackAdjustment(id string) float64 {
	if r.feedback == nil {
		return 0
	}
	rec, ok := r.feedback.Lookup(id)
	if !ok || len(rec.Entries) < r.cfg.MinFeedbackEntries {
		return 0
	}
	return clamp(-rec.AvgEntropyDelta, -r.cfg.FeedbackCap, r.cfg.FeedbackCap)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
