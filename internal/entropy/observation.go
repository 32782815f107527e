package entropy

import (
	"math"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/textutil"
	"github.com/boshu2/driftwatch/internal/types"
)

// LogObservation records obs in the recent-history ring and appends it to
// the observation log, pruning the log to its newest half once it exceeds
// capacity. Persistence failures are logged and swallowed.
func (sc *Scorer) LogObservation(obs types.Observation) {
	sc.history.Push(types.HistoryPoint{
		Timestamp:        obs.Timestamp,
		Entropy:          obs.CompositeScore,
		MetaConceptCount: obs.DetectorResults.MetaConceptCount,
	})

	if sc.store == nil {
		return
	}
	if err := sc.store.AppendJSONL(storage.ObservationsFile, obs); err != nil {
		sc.logger.Warn("append observation failed", zap.Error(err))
		return
	}

	capacity := sc.cfg.LogCapacity
	if capacity <= 0 {
		return
	}
	n, err := sc.store.CountLines(storage.ObservationsFile)
	if err != nil {
		sc.logger.Warn("count observations failed", zap.Error(err))
		return
	}
	if n > capacity {
		if err := sc.store.TruncateJSONL(storage.ObservationsFile, capacity/2); err != nil {
			sc.logger.Warn("prune observations failed", zap.Error(err))
			return
		}
		sc.logger.Debug("pruned observation log", zap.Int("before", n), zap.Int("kept", capacity/2))
	}
}

// Shannon returns the word-level Shannon entropy of text in bits per word.
// It is recorded for diagnostics and never feeds the composite.
func Shannon(text string) float64 {
	tokens := textutil.Tokens(text)
	if len(tokens) == 0 {
		return 0
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	total := float64(len(tokens))
	h := 0.0
	for _, c := range counts {
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}
