package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/gobwas/glob"
)

// Validate checks a merged configuration. It is called by Load so invalid
// tables fail at startup rather than mid-turn.
func Validate(cfg *Config) error {
	for _, expr := range cfg.Patterns.NovelConcepts {
		if _, err := regexp.Compile("(?i)" + expr); err != nil {
			return fmt.Errorf("%w: novel_concepts %q: %v", ErrInvalidPattern, expr, err)
		}
	}
	for _, g := range append(append([]string(nil), cfg.Loop.ExemptTools...), cfg.Loop.ReadTools...) {
		if _, err := glob.Compile(g); err != nil {
			return fmt.Errorf("%w: tool glob %q: %v", ErrInvalidPattern, g, err)
		}
	}

	d := cfg.Detectors
	if !(d.MetaWarning < d.MetaDanger && d.MetaDanger < d.MetaCritical) {
		return fmt.Errorf("%w (got %d/%d/%d)", ErrThresholdOrder, d.MetaWarning, d.MetaDanger, d.MetaCritical)
	}

	ratios := []struct {
		name string
		v    float64
	}{
		{"vectors.relevance_threshold", cfg.Vectors.RelevanceThreshold},
		{"vectors.duplicate_similarity", cfg.Vectors.DuplicateSimilarity},
		{"vectors.feedback_cap", cfg.Vectors.FeedbackCap},
		{"governance.dedup_similarity", cfg.Governance.DedupSimilarity},
	}
	for _, r := range ratios {
		if r.v < 0 || r.v > 1 {
			return fmt.Errorf("%w: %s = %v (want 0..1)", ErrOutOfRange, r.name, r.v)
		}
	}

	positives := []struct {
		name string
		v    int
	}{
		{"loop.history_size", cfg.Loop.HistorySize},
		{"loop.consecutive_threshold", cfg.Loop.ConsecutiveThreshold},
		{"loop.reread_threshold", cfg.Loop.RereadThreshold},
		{"feedback.window_size", cfg.Feedback.WindowSize},
		{"entropy.log_capacity", cfg.Entropy.LogCapacity},
		{"vectors.max_injected", cfg.Vectors.MaxInjected},
	}
	for _, p := range positives {
		if p.v < 1 {
			return fmt.Errorf("%w: %s = %d (want >= 1)", ErrOutOfRange, p.name, p.v)
		}
	}
	if cfg.Loop.ConsecutiveThreshold > cfg.Loop.HistorySize {
		return fmt.Errorf("%w: loop.consecutive_threshold exceeds loop.history_size", ErrOutOfRange)
	}
	if cfg.Entropy.CriticalThreshold <= 0 {
		return fmt.Errorf("%w: entropy.critical_threshold must be > 0", ErrOutOfRange)
	}

	for _, clock := range []string{cfg.Governance.QuietStart, cfg.Governance.QuietEnd} {
		if _, err := time.Parse("15:04", clock); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidClock, clock)
		}
	}

	switch cfg.Memory.Backend {
	case "sqlite", "index", "none":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Memory.Backend)
	}
	return nil
}
