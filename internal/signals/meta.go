package signals

import (
	"regexp"
	"sort"
	"strings"
)

// Bonus tiers for the recursive meta-concept detector.
const (
	metaBonusWarning  = 0.15
	metaBonusDanger   = 0.30
	metaBonusCritical = 0.45
)

type metaThresholds struct {
	warning, danger, critical int
}

// metaCounter counts whole-word occurrences of meta-concept terms.
type metaCounter struct {
	re         *regexp.Regexp
	thresholds metaThresholds
}

func newMetaCounter(terms []string, th metaThresholds) *metaCounter {
	mc := &metaCounter{thresholds: th}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(t)))
		}
	}
	if len(quoted) == 0 {
		return mc
	}
	// Longest first so a term never loses to its own prefix.
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	mc.re = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	return mc
}

func (mc *metaCounter) count(text string) int {
	if mc.re == nil || text == "" {
		return 0
	}
	return len(mc.re.FindAllStringIndex(text, -1))
}

// bonus maps a rolling total onto the ascending threshold tiers.
func (mc *metaCounter) bonus(total int) float64 {
	switch {
	case total >= mc.thresholds.critical:
		return metaBonusCritical
	case total >= mc.thresholds.danger:
		return metaBonusDanger
	case total >= mc.thresholds.warning:
		return metaBonusWarning
	default:
		return 0
	}
}
