package governance

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/types"
)

// Decision reasons.
const (
	ReasonAllowed     = "allowed"
	ReasonQuietHours  = "quiet_hours"
	ReasonRateLimited = "rate_limited"
	ReasonDuplicate   = "duplicate"
)

// Decision is the outcome of an investigation request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`

	// DuplicateOf is the earlier topic when Reason is duplicate.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	HourlyRemaining int `json:"hourly_remaining"`
	DailyRemaining  int `json:"daily_remaining"`
}

// state is the on-disk shape of investigations.json.
type state struct {
	RateLimit types.RateLimitState `json:"rate_limit"`
	Recent    []TopicEntry         `json:"recent_topics"`
}

// Service is the process-wide investigation budget. Start it once at
// startup and Stop it at shutdown; Stop saves state.
type Service struct {
	store   storage.Storage
	logger  *zap.Logger
	now     func() time.Time
	notify  func([]Notification)
	limiter *Limiter
	dedup   *Deduper
	quiet   QuietHours
	batcher *Batcher

	mu      sync.Mutex
	started bool
	stopped bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides time.Now. Quiet hours are evaluated in the returned
// time's location.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithNotifier sets the batch sink. The default logs each batch.
func WithNotifier(fn func([]Notification)) ServiceOption {
	return func(s *Service) {
		s.notify = fn
	}
}

// NewService loads persisted state from store (which should be the
// process-wide, not per-agent, namespace). A nil store keeps state in memory.
func NewService(cfg config.GovernanceConfig, store storage.Storage, opts ...ServiceOption) (*Service, error) {
	quiet, err := ParseQuietHours(cfg.QuietStart, cfg.QuietEnd)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		quiet:  quiet,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notify == nil {
		s.notify = s.logBatch
	}

	var st state
	if store != nil {
		store.ReadJSON(storage.InvestigationsFile, &st)
	}
	s.limiter = NewLimiter(cfg.MaxPerHour, cfg.MaxPerDay, st.RateLimit)
	s.dedup = NewDeduper(cfg.DedupWindow(), cfg.DedupSimilarity, st.Recent)
	s.batcher = NewBatcher(cfg.BatchDelay(), func(batch []Notification) { s.notify(batch) })
	return s, nil
}

// Start marks the service live. Requests before Start are accepted too;
// Start exists so the lifecycle is explicit at the call site.
func (s *Service) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	s.started = true
	s.logger.Debug("investigation service started", zap.String("quiet_hours", s.quiet.String()))
	return nil
}

// Stop flushes pending notifications and saves state. Safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.batcher.Stop()

	s.mu.Lock()
	s.saveLocked()
	s.mu.Unlock()
}

// Request decides whether an investigation of topic may run now. Allowed
// requests are counted, remembered for dedup, and queued for notification.
func (s *Service) Request(ctx context.Context, topic string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Decision{}, ErrEmptyTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Decision{}, ErrServiceStopped
	}

	now := s.now()
	d := s.decideLocked(topic, now)
	if !d.Allowed {
		s.logger.Debug("investigation declined", zap.String("topic", topic), zap.String("reason", d.Reason))
		return d, nil
	}

	s.limiter.Record(now)
	s.dedup.Add(topic, now)
	d.HourlyRemaining, d.DailyRemaining = s.limiter.Remaining(now)
	s.batcher.Add(Notification{Topic: topic, QueuedAt: now})
	s.saveLocked()
	return d, nil
}

// Check is Request without side effects other than the dedup sweep.
func (s *Service) Check(topic string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decideLocked(strings.TrimSpace(topic), s.now())
}

func (s *Service) decideLocked(topic string, now time.Time) Decision {
	d := Decision{Reason: ReasonAllowed}
	d.HourlyRemaining, d.DailyRemaining = s.limiter.Remaining(now)

	switch {
	case s.quiet.Active(now):
		d.Reason = ReasonQuietHours
	case !s.limiter.CanInvestigate(now):
		d.Reason = ReasonRateLimited
	default:
		if prior, dup := s.dedup.IsDuplicate(topic, now); dup {
			d.Reason = ReasonDuplicate
			d.DuplicateOf = prior
		} else {
			d.Allowed = true
		}
	}
	return d
}

// Flush delivers queued notifications without waiting for the debounce.
func (s *Service) Flush() {
	s.batcher.Flush()
}

// saveLocked persists state. Failures are logged and swallowed.
func (s *Service) saveLocked() {
	if s.store == nil {
		return
	}
	st := state{RateLimit: s.limiter.State(), Recent: s.dedup.Entries()}
	if err := s.store.WriteJSON(storage.InvestigationsFile, st); err != nil {
		s.logger.Warn("save investigation state failed", zap.Error(err))
	}
}

func (s *Service) logBatch(batch []Notification) {
	topics := make([]string, len(batch))
	for i, n := range batch {
		topics[i] = n.Topic
	}
	s.logger.Info("investigations queued", zap.Strings("topics", topics))
}
