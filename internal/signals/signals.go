// Package signals classifies a (user message, response) pair into the named
// behavioral signals consumed by the entropy scorer.
package signals

import (
	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/ring"
	"github.com/boshu2/driftwatch/internal/textutil"
	"github.com/boshu2/driftwatch/internal/types"
)

// metaHistorySize is the rolling window of prior meta-concept counts.
const metaHistorySize = 5

// Detectors runs every text detector. It carries the meta-concept rolling
// window, so one instance belongs to one agent pipeline.
type Detectors struct {
	futurePlan       textutil.PhraseSet
	alreadyHappened  textutil.PhraseSet
	conclusory       textutil.PhraseSet
	forcedIntimacy   textutil.PhraseSet
	legacyDeflection textutil.PhraseSet

	shortWords int
	meta       *metaCounter
	history    *ring.Buffer[int]
}

// New builds detectors from the configured thresholds and phrase tables.
func New(cfg config.DetectorsConfig, p config.Patterns) *Detectors {
	return &Detectors{
		futurePlan:       textutil.NewPhraseSet(p.FuturePlan),
		alreadyHappened:  textutil.NewPhraseSet(p.AlreadyHappened),
		conclusory:       textutil.NewPhraseSet(p.Conclusory),
		forcedIntimacy:   textutil.NewPhraseSet(p.ForcedIntimacy),
		legacyDeflection: textutil.NewPhraseSet(p.LegacyDeflection),
		shortWords:       cfg.ShortMessageWords,
		meta: newMetaCounter(p.MetaConcepts, metaThresholds{
			warning:  cfg.MetaWarning,
			danger:   cfg.MetaDanger,
			critical: cfg.MetaCritical,
		}),
		history: ring.New[int](metaHistorySize),
	}
}

// RunAll evaluates every detector against the pair. The meta-concept count
// of this turn is pushed into the rolling window after the bonus is computed.
func (d *Detectors) RunAll(userMessage, responseText string) types.DetectorResult {
	count := d.meta.count(userMessage + " " + responseText)

	total := count
	for _, prior := range d.history.Slice() {
		total += prior
	}
	bonus := d.meta.bonus(total)
	d.history.Push(count)

	return types.DetectorResult{
		TemporalMismatch:   d.temporalMismatch(userMessage, responseText),
		QualityDecay:       d.qualityDecay(userMessage, responseText),
		RecursiveMetaBonus: bonus,
		MetaConceptCount:   count,
	}
}

// History returns the prior meta-concept counts, oldest first.
func (d *Detectors) History() []int {
	return d.history.Slice()
}

// Restore replaces the rolling window, keeping the newest entries.
func (d *Detectors) Restore(counts []int) {
	d.history = ring.From(metaHistorySize, counts)
}
