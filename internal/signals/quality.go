package signals

import "github.com/boshu2/driftwatch/internal/textutil"

// qualityDecay flags a disproportionate, intimacy- or legacy-laden reply to a
// terse or conclusory user turn.
func (d *Detectors) qualityDecay(user, response string) bool {
	terse := textutil.WordCount(user) < d.shortWords || d.conclusory.Match(user)
	if !terse {
		return false
	}
	return d.forcedIntimacy.Match(response) || d.legacyDeflection.Match(response)
}
