// Package heartbeat extracts structured decisions from periodic heartbeat
// turns and records them in the memory store.
package heartbeat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/memory"
)

// MemoryType tags decision records in the memory store.
const MemoryType = "heartbeat_decision"

// DefaultMarker identifies a heartbeat prompt in the user turn.
const DefaultMarker = "heartbeat"

var (
	decisionLine = regexp.MustCompile(`(?mi)^[ \t]*\**DECISION\**[ \t]*:[ \t]*(.+?)[ \t]*$`)
	reasonLine   = regexp.MustCompile(`(?mi)^[ \t]*\**REASON\**[ \t]*:[ \t]*(.+?)[ \t]*$`)
)

// Decision is one extracted heartbeat decision.
type Decision struct {
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	Entropy   float64   `json:"entropy"`
	Timestamp time.Time `json:"timestamp"`
}

// Extract pulls the first DECISION: line and its REASON: line from text.
func Extract(text string) (Decision, bool) {
	m := decisionLine.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return Decision{}, false
	}
	d := Decision{Decision: strings.TrimSpace(m[1])}
	if r := reasonLine.FindStringSubmatch(text); r != nil {
		d.Reason = strings.TrimSpace(r[1])
	}
	return d, true
}

// Recorder logs decisions made on heartbeat turns.
type Recorder struct {
	marker string
	store  memory.Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMarker overrides the heartbeat marker.
func WithMarker(marker string) Option {
	return func(r *Recorder) {
		r.marker = strings.ToLower(marker)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder writing to store (nil disables storage).
func NewRecorder(store memory.Store, opts ...Option) *Recorder {
	r := &Recorder{
		marker: DefaultMarker,
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsHeartbeat reports whether the user turn is a heartbeat prompt.
func (r *Recorder) IsHeartbeat(user string) bool {
	return r.marker != "" && strings.Contains(strings.ToLower(user), r.marker)
}

// Record extracts and stores the decision of a heartbeat turn. Non-heartbeat
// turns and responses without a decision line are ignored. Storage failures
// are logged.
func (r *Recorder) Record(ctx context.Context, user, response string, entropy float64) (Decision, bool) {
	if !r.IsHeartbeat(user) {
		return Decision{}, false
	}
	d, ok := Extract(response)
	if !ok {
		return Decision{}, false
	}
	d.Entropy = entropy
	d.Timestamp = r.now().UTC()

	if r.store != nil {
		content := "Decision: " + d.Decision
		if d.Reason != "" {
			content += "\nReason: " + d.Reason
		}
		meta := map[string]string{
			memory.MetaType: MemoryType,
			"entropy":       fmt.Sprintf("%.3f", entropy),
		}
		if _, err := r.store.Store(ctx, content, meta); err != nil {
			r.logger.Warn("store heartbeat decision failed", zap.Error(err))
		}
	}
	return d, true
}
