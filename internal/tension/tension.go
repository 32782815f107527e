// Package tension tracks unresolved friction points in a conversation:
// user corrections, unsupported capability claims and entropy spikes.
package tension

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/principles"
	"github.com/boshu2/driftwatch/internal/textutil"
	"github.com/boshu2/driftwatch/internal/types"
)

// Tension types.
const (
	TypeCorrection      = "correction"
	TypeCapabilityClaim = "capability_claim"
	TypeEntropySpike    = "entropy_spike"
)

const (
	// ResolutionWindow bounds how old an active tension may be and still be
	// resolved by the current turn.
	ResolutionWindow = 30 * time.Minute

	// Retention is how long tensions are kept in memory.
	Retention = 7 * 24 * time.Hour

	// MemoryType tags tension records in the memory store.
	MemoryType = "tension"
)

// Result is what one turn did to the tension list.
type Result struct {
	Detected []types.Tension
	Resolved []types.Tension
}

// Tracker holds the tensions of one agent.
type Tracker struct {
	correction     textutil.PhraseSet
	capability     textutil.PhraseSet
	acknowledgment textutil.PhraseSet
	critical       float64

	store  memory.Store
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	tensions []types.Tension
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMemory persists detected tensions to store (best-effort).
func WithMemory(store memory.Store) Option {
	return func(t *Tracker) {
		t.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker. Scores at or above critical raise an
// entropy-spike tension.
func NewTracker(p config.Patterns, critical float64, opts ...Option) *Tracker {
	t := &Tracker{
		correction:     textutil.NewPhraseSet(p.Correction),
		capability:     textutil.NewPhraseSet(p.CapabilityClaim),
		acknowledgment: textutil.NewPhraseSet(p.Acknowledgment),
		critical:       critical,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process resolves earlier tensions the response addresses, then records
// the new tensions this turn raises. Expired tensions are dropped first.
//
// Resolution runs before detection, so a tension raised by this turn is
// never resolved by the same turn's response: a correction the response
// immediately acknowledges stays active until a later turn resolves it.
func (t *Tracker) Process(ctx context.Context, sessionID, user, response string, entropy float64, doc principles.Document) Result {
	t.mu.Lock()
	now := t.now().UTC()
	t.expireLocked(now)

	var res Result
	res.Resolved = t.resolveLocked(sessionID, response, doc, now)
	res.Detected = t.detectLocked(sessionID, user, response, entropy, now)
	t.mu.Unlock()

	for _, ts := range res.Detected {
		t.persist(ctx, ts)
	}
	return res
}

func (t *Tracker) detectLocked(sessionID, user, response string, entropy float64, now time.Time) []types.Tension {
	var found []types.Tension
	add := func(typ, desc string) {
		found = append(found, types.Tension{
			ID:           uuid.NewString(),
			Type:         typ,
			Description:  desc,
			EntropyScore: entropy,
			DetectedAt:   now,
			Status:       types.TensionActive,
			SessionID:    sessionID,
		})
	}

	if phrase, ok := t.correction.First(user); ok {
		add(TypeCorrection, fmt.Sprintf("user correction: %q", phrase))
	}
	if phrase, ok := t.capability.First(response); ok {
		add(TypeCapabilityClaim, fmt.Sprintf("capability claim: %q", phrase))
	}
	if t.critical > 0 && entropy >= t.critical {
		add(TypeEntropySpike, fmt.Sprintf("entropy %.2f at or above critical %.2f", entropy, t.critical))
	}

	t.tensions = append(t.tensions, found...)
	return found
}

// resolveLocked resolves active tensions of sessionID detected within the
// resolution window when the response acknowledges them or names a
// principle.
func (t *Tracker) resolveLocked(sessionID, response string, doc principles.Document, now time.Time) []types.Tension {
	if !t.acknowledgment.Match(response) && len(doc.Mentions(response)) == 0 {
		return nil
	}
	cutoff := now.Add(-ResolutionWindow)
	var resolved []types.Tension
	for i := range t.tensions {
		ts := &t.tensions[i]
		if ts.Status != types.TensionActive || ts.SessionID != sessionID || ts.DetectedAt.Before(cutoff) {
			continue
		}
		at := now
		ts.Status = types.TensionResolved
		ts.ResolvedAt = &at
		resolved = append(resolved, *ts)
	}
	return resolved
}

func (t *Tracker) expireLocked(now time.Time) {
	cutoff := now.Add(-Retention)
	kept := t.tensions[:0]
	for _, ts := range t.tensions {
		if ts.DetectedAt.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.tensions = kept
}

func (t *Tracker) persist(ctx context.Context, ts types.Tension) {
	if t.store == nil {
		return
	}
	content := fmt.Sprintf("Tension (%s): %s", ts.Type, ts.Description)
	meta := map[string]string{
		memory.MetaType: MemoryType,
		"tension_id":    ts.ID,
		"tension_type":  ts.Type,
		"session_id":    ts.SessionID,
		"entropy":       fmt.Sprintf("%.3f", ts.EntropyScore),
	}
	if _, err := t.store.Store(ctx, content, meta); err != nil {
		t.logger.Warn("store tension failed", zap.String("id", ts.ID), zap.Error(err))
	}
}

// Active returns active tensions, newest first. An empty sessionID matches
// every session.
func (t *Tracker) Active(sessionID string) []types.Tension {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []types.Tension
	for i := len(t.tensions) - 1; i >= 0; i-- {
		ts := t.tensions[i]
		if ts.Status == types.TensionActive && (sessionID == "" || ts.SessionID == sessionID) {
			out = append(out, ts)
		}
	}
	return out
}

// All returns a copy of every retained tension.
func (t *Tracker) All() []types.Tension {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.Tension(nil), t.tensions...)
}

// Restore replaces the tracked tensions, e.g. from hook-mode session state.
func (t *Tracker) Restore(tensions []types.Tension) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tensions = append([]types.Tension(nil), tensions...)
}
