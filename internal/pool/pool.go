// Package pool manages auto-detected growth-vector candidates. Candidates
// live in their own file; they reach the primary collection only through
// promotion (explicit, or automatic once a near-duplicate recurs enough).
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/textutil"
	"github.com/boshu2/driftwatch/internal/types"
	"github.com/boshu2/driftwatch/internal/vectors"
)

// Chain operations.
const (
	OpAdd     = "add"
	OpRecur   = "recur"
	OpPromote = "promote"
	OpExpire  = "expire"
	OpEvict   = "evict"
)

// ChainEvent records a pool operation.
type ChainEvent struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the action taken (add, recur, promote, expire, evict).
	Operation string `json:"operation"`

	// VectorID is the affected vector.
	VectorID string `json:"vector_id"`

	// FromStatus is the previous status.
	FromStatus types.ValidationStatus `json:"from_status,omitempty"`

	// ToStatus is the new status.
	ToStatus types.ValidationStatus `json:"to_status,omitempty"`

	// Reason explains why the operation occurred.
	Reason string `json:"reason,omitempty"`
}

// AddResult describes what AddCandidate did.
type AddResult struct {
	ID         string `json:"id"`
	Operation  string `json:"operation"`
	Recurrence int    `json:"recurrence"`
}

// LifecycleReport summarizes one RunLifecycle pass.
type LifecycleReport struct {
	Expired []string `json:"expired"`
	Evicted []string `json:"evicted"`
}

// candidateFile is the on-disk shape of the candidates file.
type candidateFile struct {
	Candidates []types.GrowthVector `json:"candidates"`
}

// Pool manages the candidate pool for one agent.
type Pool struct {
	cfg    config.VectorsConfig
	store  storage.Storage
	loader *vectors.Loader
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a pool. loader is the primary collection promotions are
// written to.
func NewPool(cfg config.VectorsConfig, store storage.Storage, loader *vectors.Loader, opts ...Option) *Pool {
	p := &Pool{
		cfg:    cfg,
		store:  store,
		loader: loader,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates returns the pending candidates.
func (p *Pool) Candidates() []types.GrowthVector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readCandidates().Candidates
}

// AddCandidate records an auto-detected vector. A near-duplicate (same type
// and description similarity at or above the configured ratio) bumps the
// existing candidate's recurrence instead, promoting it once recurrence
// reaches the configured threshold.
func (p *Pool) AddCandidate(ctx context.Context, v types.GrowthVector) (AddResult, error) {
	if strings.TrimSpace(v.Description) == "" {
		return AddResult{}, ErrEmptyDescription
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cf := p.readCandidates()
	now := p.now().UTC()

	if i := p.findDuplicate(cf.Candidates, v); i >= 0 {
		existing := &cf.Candidates[i]
		existing.Recurrence++
		res := AddResult{ID: existing.ID, Operation: OpRecur, Recurrence: existing.Recurrence}

		if existing.Recurrence >= p.cfg.PromotionRecurrence {
			promoted := *existing
			cf.Candidates = append(cf.Candidates[:i], cf.Candidates[i+1:]...)
			if err := p.promote(ctx, promoted, fmt.Sprintf("recurred %d times", promoted.Recurrence)); err != nil {
				return AddResult{}, err
			}
			if err := p.writeCandidates(cf); err != nil {
				return AddResult{}, err
			}
			res.Operation = OpPromote
			return res, nil
		}

		if err := p.writeCandidates(cf); err != nil {
			return AddResult{}, err
		}
		p.recordEvent(ChainEvent{Timestamp: now, Operation: OpRecur, VectorID: existing.ID,
			Reason: fmt.Sprintf("recurrence %d", existing.Recurrence)})
		return res, nil
	}

	if v.ID == "" {
		v.ID = "gv-" + uuid.NewString()
	}
	if v.Detected.IsZero() {
		v.Detected = now
	}
	v.ValidationStatus = types.StatusCandidate
	v.Recurrence = 1
	cf.Candidates = append(cf.Candidates, v)
	if err := p.writeCandidates(cf); err != nil {
		return AddResult{}, err
	}
	p.recordEvent(ChainEvent{Timestamp: now, Operation: OpAdd, VectorID: v.ID, ToStatus: types.StatusCandidate})
	return AddResult{ID: v.ID, Operation: OpAdd, Recurrence: 1}, nil
}

func (p *Pool) findDuplicate(candidates []types.GrowthVector, v types.GrowthVector) int {
	words := textutil.Words(v.Description)
	for i, c := range candidates {
		if c.Type != v.Type {
			continue
		}
		if textutil.Jaccard(words, textutil.Words(c.Description)) >= p.cfg.DuplicateSimilarity {
			return i
		}
	}
	return -1
}

// Validate explicitly promotes a candidate into the primary collection, or
// marks a candidate-status vector already in the collection as validated.
func (p *Pool) Validate(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrEmptyID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cf := p.readCandidates()
	for i, c := range cf.Candidates {
		if c.ID != id {
			continue
		}
		cf.Candidates = append(cf.Candidates[:i], cf.Candidates[i+1:]...)
		if err := p.promote(ctx, c, "manual validation"); err != nil {
			return err
		}
		return p.writeCandidates(cf)
	}

	coll, err := p.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load growth vectors: %w", err)
	}
	updated := coll.Clone()
	for i := range updated.Vectors {
		v := &updated.Vectors[i]
		if v.ID != id {
			continue
		}
		if v.ValidationStatus.Injectable() {
			return fmt.Errorf("%w: %s", ErrAlreadyValidated, id)
		}
		from := v.ValidationStatus
		v.ValidationStatus = types.StatusValidated
		if err := p.loader.Save(updated); err != nil {
			return err
		}
		p.recordEvent(ChainEvent{Timestamp: p.now().UTC(), Operation: OpPromote, VectorID: id,
			FromStatus: from, ToStatus: types.StatusValidated, Reason: "manual validation"})
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCandidateNotFound, id)
}

// promote appends v to the primary collection as validated.
func (p *Pool) promote(ctx context.Context, v types.GrowthVector, reason string) error {
	coll, err := p.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load growth vectors: %w", err)
	}
	updated := coll.Clone()
	from := v.ValidationStatus
	v.ValidationStatus = types.StatusValidated
	updated.Vectors = append(updated.Vectors, v)
	if err := p.loader.Save(updated); err != nil {
		return err
	}
	p.recordEvent(ChainEvent{Timestamp: p.now().UTC(), Operation: OpPromote, VectorID: v.ID,
		FromStatus: from, ToStatus: types.StatusValidated, Reason: reason})
	p.logger.Info("promoted growth vector", zap.String("id", v.ID), zap.String("reason", reason))
	return nil
}

// RunLifecycle prunes candidates older than the configured age and caps the
// injectable vectors in the primary collection, evicting the oldest-detected
// first.
func (p *Pool) RunLifecycle(ctx context.Context) (LifecycleReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var report LifecycleReport
	now := p.now().UTC()
	cutoff := now.Add(-p.cfg.CandidateMaxAge())

	cf := p.readCandidates()
	kept := cf.Candidates[:0]
	for _, c := range cf.Candidates {
		if c.Detected.Before(cutoff) {
			report.Expired = append(report.Expired, c.ID)
			p.recordEvent(ChainEvent{Timestamp: now, Operation: OpExpire, VectorID: c.ID,
				FromStatus: c.ValidationStatus, Reason: "candidate aged out"})
			continue
		}
		kept = append(kept, c)
	}
	if len(report.Expired) > 0 {
		cf.Candidates = kept
		if err := p.writeCandidates(cf); err != nil {
			return report, err
		}
	}

	coll, err := p.loader.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load growth vectors: %w", err)
	}
	injectable := coll.Injectable()
	excess := len(injectable) - p.cfg.MaxValidated
	if excess <= 0 {
		return report, nil
	}

	sort.SliceStable(injectable, func(i, j int) bool {
		return injectable[i].Detected.Before(injectable[j].Detected)
	})
	evict := make(map[string]bool, excess)
	for _, v := range injectable[:excess] {
		evict[v.ID] = true
	}

	updated := coll.Clone()
	remaining := updated.Vectors[:0]
	for _, v := range updated.Vectors {
		if evict[v.ID] && v.ValidationStatus.Injectable() {
			report.Evicted = append(report.Evicted, v.ID)
			p.recordEvent(ChainEvent{Timestamp: now, Operation: OpEvict, VectorID: v.ID,
				FromStatus: v.ValidationStatus, Reason: "validated cap exceeded"})
			continue
		}
		remaining = append(remaining, v)
	}
	updated.Vectors = remaining
	if err := p.loader.Save(updated); err != nil {
		return report, err
	}
	return report, nil
}

// Chain returns all recorded pool events, oldest first. Malformed lines are skipped.
func (p *Pool) Chain() ([]ChainEvent, error) {
	var events []ChainEvent
	err := p.store.ReadJSONL(storage.PoolChainFile, func(line []byte) error {
		var ev ChainEvent
		if json.Unmarshal(line, &ev) == nil {
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

func (p *Pool) readCandidates() candidateFile {
	var cf candidateFile
	if !p.store.ReadJSON(storage.CandidatesFile, &cf) {
		return candidateFile{}
	}
	return cf
}

func (p *Pool) writeCandidates(cf candidateFile) error {
	if cf.Candidates == nil {
		cf.Candidates = []types.GrowthVector{}
	}
	if err := p.store.WriteJSON(storage.CandidatesFile, cf); err != nil {
		return fmt.Errorf("save candidates: %w", err)
	}
	return nil
}

// recordEvent appends to the audit chain. Failures are logged, never returned.
func (p *Pool) recordEvent(event ChainEvent) {
	if err := p.store.AppendJSONL(storage.PoolChainFile, event); err != nil {
		p.logger.Warn("failed to record pool event", zap.String("op", event.Operation), zap.Error(err))
	}
}
