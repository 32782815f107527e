// Package monitor wires the scoring, loop-detection and growth-vector
// components into one pipeline per monitored agent and exposes the hook
// entry points a host runtime calls.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/entropy"
	"github.com/boshu2/driftwatch/internal/feedback"
	"github.com/boshu2/driftwatch/internal/heartbeat"
	"github.com/boshu2/driftwatch/internal/inject"
	"github.com/boshu2/driftwatch/internal/loopdetect"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/pool"
	"github.com/boshu2/driftwatch/internal/principles"
	"github.com/boshu2/driftwatch/internal/signals"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/telemetry"
	"github.com/boshu2/driftwatch/internal/tension"
	"github.com/boshu2/driftwatch/internal/types"
	"github.com/boshu2/driftwatch/internal/vectors"
)

// DefaultAgentID is used when a hook event names no agent.
const DefaultAgentID = "main"

// Agent is the isolated pipeline of one monitored agent. Hooks hold the
// agent lock for their whole run, so one agent's turns are processed
// strictly in order.
type Agent struct {
	id  string
	cfg *config.Config

	store      *storage.FileStorage
	detectors  *signals.Detectors
	scorer     *entropy.Scorer
	loops      *loopdetect.Detector
	loader     *vectors.Loader
	ranker     *vectors.Ranker
	feedback   *feedback.Loop
	pool       *pool.Pool
	tensions   *tension.Tracker
	heartbeat  *heartbeat.Recorder
	builder    *inject.Builder
	principles *principles.Reader
	ownReader  bool
	memory     memory.Store
	telemetry  *telemetry.Telemetry

	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastTriggers []string
	session      sessionState
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithClock overrides time.Now for every component.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// WithMemory sets the downstream store for tensions, decisions and
// compaction summaries. The agent does not close it.
func WithMemory(store memory.Store) Option {
	return func(a *Agent) {
		a.memory = store
	}
}

// WithTelemetry sets the metric and span recorder.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(a *Agent) {
		a.telemetry = t
	}
}

// WithPrinciples shares a principles reader between agents.
func WithPrinciples(r *principles.Reader) Option {
	return func(a *Agent) {
		a.principles = r
	}
}

// NewAgent builds the pipeline for agentID under cfg.BaseDir and restores
// any persisted state. Only namespace and pattern errors are returned.
func NewAgent(cfg *config.Config, agentID string, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if agentID == "" {
		agentID = DefaultAgentID
	}
	store, err := storage.NewFileStorage(storage.WithBaseDir(cfg.BaseDir)).ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	if err := store.Init(); err != nil {
		return nil, err
	}

	a := &Agent{
		id:     agentID,
		cfg:    cfg,
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("agent", agentID))
	if a.memory == nil {
		a.memory = memory.Nop{}
	}
	a.memory = memory.Tag(a.memory, agentID)
	if a.telemetry == nil {
		a.telemetry = telemetry.Nop()
	}
	if a.principles == nil {
		a.principles = principles.NewReader(cfg.Paths.PrinciplesFile, principles.WithLogger(a.logger))
		a.ownReader = true
	}

	if err := a.build(); err != nil {
		return nil, err
	}
	a.restore()
	return a, nil
}

func (a *Agent) build() error {
	cfg := a.cfg
	var err error

	a.detectors = signals.New(cfg.Detectors, cfg.Patterns)
	a.scorer, err = entropy.New(cfg.Entropy, cfg.Patterns,
		entropy.WithStorage(a.store), entropy.WithLogger(a.logger), entropy.WithClock(a.now))
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.id, err)
	}
	a.loops, err = loopdetect.New(cfg.Loop, loopdetect.WithClock(a.now))
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.id, err)
	}
	a.loader, err = vectors.NewLoader(a.store, cfg.Vectors.CacheEntries,
		vectors.WithTTL(cfg.Vectors.CacheTTL()),
		vectors.WithLoaderLogger(a.logger),
		vectors.WithLoaderClock(a.now))
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.id, err)
	}

	a.feedback = feedback.NewLoop(cfg.Feedback,
		feedback.WithStorage(a.store),
		feedback.WithLogger(a.logger),
		feedback.WithClock(a.now),
		feedback.WithDeltaObserver(func(delta float64) {
			a.telemetry.RecordFeedbackDelta(context.Background(), a.id, delta)
		}))
	a.ranker = vectors.NewRanker(cfg.Vectors, a.loader,
		vectors.WithFeedback(a.feedback),
		vectors.WithRankerLogger(a.logger),
		vectors.WithRankerClock(a.now))
	a.pool = pool.NewPool(cfg.Vectors, a.store, a.loader, pool.WithLogger(a.logger), pool.WithClock(a.now))

	a.tensions = tension.NewTracker(cfg.Patterns, cfg.Entropy.CriticalThreshold,
		tension.WithMemory(a.memory), tension.WithLogger(a.logger), tension.WithClock(a.now))
	a.heartbeat = heartbeat.NewRecorder(a.memory, heartbeat.WithLogger(a.logger), heartbeat.WithClock(a.now))
	a.builder = inject.NewBuilder(cfg.Inject)
	return nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string {
	return a.id
}

// Dir returns the agent's data namespace.
func (a *Agent) Dir() string {
	return a.store.Dir()
}

// Pool returns the candidate pool.
func (a *Agent) Pool() *pool.Pool {
	return a.pool
}

// Ranker returns the growth-vector ranker.
func (a *Agent) Ranker() *vectors.Ranker {
	return a.ranker
}

// Loader returns the growth-vector collection loader.
func (a *Agent) Loader() *vectors.Loader {
	return a.loader
}

// Feedback returns the feedback loop.
func (a *Agent) Feedback() *feedback.Loop {
	return a.feedback
}

// Watch starts file watchers on the vector collection and, when the agent
// built its own principles reader, the principles document. A reader passed
// with WithPrinciples is shared and watched by its owner. Failures are
// logged; polling by checksum still works.
func (a *Agent) Watch(ctx context.Context) {
	if err := a.loader.Watch(ctx); err != nil {
		a.logger.Warn("watch growth vectors failed", zap.Error(err))
	}
	if !a.ownReader {
		return
	}
	if err := a.principles.Watch(ctx); err != nil {
		a.logger.Warn("watch principles failed", zap.Error(err))
	}
}

// Close stops the agent's watchers and saves state.
func (a *Agent) Close() {
	a.loader.StopWatching()
	if a.ownReader {
		a.principles.StopWatching()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.saveLocked()
}

// Status is a read-only view of the agent's state.
type Status struct {
	AgentID        string                          `json:"agent_id"`
	SessionID      string                          `json:"session_id,omitempty"`
	LastScore      float64                         `json:"last_score"`
	Critical       bool                            `json:"critical"`
	Sustained      entropy.SustainedStatus         `json:"sustained"`
	LastTriggers   []string                        `json:"last_triggers,omitempty"`
	History        []types.HistoryPoint            `json:"history"`
	ActiveTensions []types.Tension                 `json:"active_tensions,omitempty"`
	Pending        *feedback.Pending               `json:"pending_feedback,omitempty"`
	Feedback       map[string]types.FeedbackRecord `json:"feedback,omitempty"`
	Candidates     int                             `json:"candidates"`
	InjectedIDs    []string                        `json:"injected_ids,omitempty"`
	LoopWarnings   []string                        `json:"loop_warnings,omitempty"`
}

// Status snapshots the agent.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	last := a.scorer.LastScore()
	return Status{
		AgentID:        a.id,
		SessionID:      a.session.SessionID,
		LastScore:      last,
		Critical:       a.scorer.Critical(last),
		Sustained:      a.sustainedLocked(),
		LastTriggers:   append([]string(nil), a.lastTriggers...),
		History:        a.scorer.History(),
		ActiveTensions: a.tensions.Active(a.session.SessionID),
		Pending:        a.feedback.Pending(),
		Feedback:       a.feedback.Records(),
		Candidates:     len(a.pool.Candidates()),
		InjectedIDs:    append([]string(nil), a.session.InjectedIDs...),
		LoopWarnings:   append([]string(nil), a.session.LoopWarnings...),
	}
}

// sustainedLocked derives the sustained status from the scorer state
// without advancing it.
func (a *Agent) sustainedLocked() entropy.SustainedStatus {
	st := a.scorer.State()
	if st.SustainedStartTime == nil {
		return entropy.SustainedStatus{}
	}
	elapsed := a.now().Sub(*st.SustainedStartTime)
	return entropy.SustainedStatus{
		Sustained: elapsed >= a.cfg.Entropy.SustainedDuration(),
		Turns:     st.SustainedTurns,
		Minutes:   elapsed.Minutes(),
	}
}
