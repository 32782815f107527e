// Package feedback closes the injection loop: vectors injected at a turn's
// start are scored against the entropy observed at that turn's end, and the
// per-vector rolling mean feeds back into the ranker.
package feedback

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/ring"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/types"
)

// DefaultWindowSize is the per-vector entry capacity when none is configured.
const DefaultWindowSize = 10

// Injected names one vector included in a turn-start block.
type Injected struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

// Pending is an injection batch awaiting its observation. It is exported so
// one-shot hook invocations can carry it between processes.
type Pending struct {
	PreEntropy float64    `json:"pre_entropy"`
	Vectors    []Injected `json:"vectors"`
	InjectedAt time.Time  `json:"injected_at"`
}

// Loop holds the feedback records of one agent.
type Loop struct {
	window  int
	store   storage.Storage
	logger  *zap.Logger
	now     func() time.Time
	records map[string]types.FeedbackRecord
	pending *Pending

	// onDelta observes every recorded delta (telemetry).
	onDelta func(delta float64)

	mu sync.Mutex
}

// Option configures a Loop.
type Option func(*Loop)

// WithStorage enables loading and best-effort saving of the feedback file.
func WithStorage(store storage.Storage) Option {
	return func(l *Loop) {
		l.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// WithDeltaObserver registers fn to be called with every recorded delta.
func WithDeltaObserver(fn func(delta float64)) Option {
	return func(l *Loop) {
		l.onDelta = fn
	}
}

// NewLoop creates a feedback loop, loading any persisted records.
func NewLoop(cfg config.FeedbackConfig, opts ...Option) *Loop {
	l := &Loop{
		window:  cfg.WindowSize,
		logger:  zap.NewNop(),
		now:     time.Now,
		records: make(map[string]types.FeedbackRecord),
	}
	if l.window <= 0 {
		l.window = DefaultWindowSize
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store != nil {
		var loaded map[string]types.FeedbackRecord
		if l.store.ReadJSON(storage.FeedbackFile, &loaded) && loaded != nil {
			l.records = loaded
		}
	}
	return l
}

// Record appends entry to the vector's rolling window, evicting the oldest
// entry once full, and recomputes the mean delta.
func (l *Loop) Record(vectorID string, entry types.FeedbackEntry) {
	l.mu.Lock()
	l.recordLocked(vectorID, entry)
	l.mu.Unlock()
	l.save()
}

func (l *Loop) recordLocked(vectorID string, entry types.FeedbackEntry) {
	rec := l.records[vectorID]

	buf := ring.From(l.window, rec.Entries)
	buf.Push(entry)
	rec.Entries = buf.Slice()

	var sum float64
	for _, e := range rec.Entries {
		sum += e.EntropyDelta
	}
	rec.AvgEntropyDelta = sum / float64(len(rec.Entries))
	rec.TotalInjections++
	rec.LastUsed = entry.Timestamp
	l.records[vectorID] = rec

	if l.onDelta != nil {
		l.onDelta(entry.EntropyDelta)
	}
}

// Lookup returns the record for vectorID.
func (l *Loop) Lookup(vectorID string) (types.FeedbackRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[vectorID]
	return rec, ok
}

// Records returns a copy of all records.
func (l *Loop) Records() map[string]types.FeedbackRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]types.FeedbackRecord, len(l.records))
	for id, rec := range l.records {
		out[id] = rec
	}
	return out
}

// BeginInjection opens a batch for the vectors injected at turn start. An
// empty batch clears any pending one, so a turn without injection never
// closes against an older batch.
func (l *Loop) BeginInjection(preEntropy float64, injected []Injected) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(injected) == 0 {
		l.pending = nil
		return
	}
	l.pending = &Pending{
		PreEntropy: preEntropy,
		Vectors:    append([]Injected(nil), injected...),
		InjectedAt: l.now().UTC(),
	}
}

// Close pairs the pending batch with the observed post-turn entropy and
// records one entry per vector. The batch is cleared whether or not one
// was pending. It returns the number of entries recorded.
func (l *Loop) Close(postEntropy float64, tensionDetected bool) int {
	l.mu.Lock()
	p := l.pending
	l.pending = nil
	if p == nil {
		l.mu.Unlock()
		return 0
	}
	ts := l.now().UTC()
	for _, v := range p.Vectors {
		l.recordLocked(v.ID, types.FeedbackEntry{
			PreEntropy:      p.PreEntropy,
			PostEntropy:     postEntropy,
			EntropyDelta:    postEntropy - p.PreEntropy,
			RelevanceScore:  v.Relevance,
			TensionDetected: tensionDetected,
			Timestamp:       ts,
		})
	}
	l.mu.Unlock()

	l.save()
	return len(p.Vectors)
}

// Pending returns a copy of the open batch, or nil.
func (l *Loop) Pending() *Pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return nil
	}
	cp := *l.pending
	cp.Vectors = append([]Injected(nil), l.pending.Vectors...)
	return &cp
}

// RestorePending reinstates a batch saved by a previous process.
func (l *Loop) RestorePending(p *Pending) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p == nil || len(p.Vectors) == 0 {
		l.pending = nil
		return
	}
	cp := *p
	l.pending = &cp
}

// save persists all records. Failures are logged and swallowed.
func (l *Loop) save() {
	if l.store == nil {
		return
	}
	snapshot := l.Records()
	if err := l.store.WriteJSON(storage.FeedbackFile, snapshot); err != nil {
		l.logger.Warn("save feedback failed", zap.Error(err))
	}
}
