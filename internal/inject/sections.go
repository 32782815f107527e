package inject

import (
	"fmt"
	"strings"
	"time"

	"github.com/boshu2/driftwatch/internal/types"
	"github.com/boshu2/driftwatch/internal/vectors"
)

// EntropySection reports the last score and, when sustained, a
// fragmentation warning. The warning section is critical.
func EntropySection(score float64, sustained bool, turns int, minutes float64) Section {
	s := Section{
		Title:    "Entropy",
		Priority: PriorityHigh,
		Lines:    []string{fmt.Sprintf("Last turn entropy: %.2f", score)},
	}
	if sustained {
		s.Priority = PriorityCritical
		s.Lines = append(s.Lines, FragmentationWarning(turns, minutes))
	}
	return s
}

// FragmentationWarning is the text shown when high entropy is sustained.
func FragmentationWarning(turns int, minutes float64) string {
	return fmt.Sprintf("Warning: entropy has stayed critical for %d turns (%.0f min). Slow down, restate the goal, and verify before continuing.", turns, minutes)
}

// VectorSection lists the ranked growth vectors.
func VectorSection(ranked []vectors.Ranked) Section {
	s := Section{Title: "Growth vectors", Priority: PriorityHigh}
	for _, r := range ranked {
		line := fmt.Sprintf("- %s", r.Vector.Description)
		if h := strings.TrimSpace(r.Vector.IntegrationHypothesis); h != "" {
			line += " (" + h + ")"
		}
		s.Lines = append(s.Lines, line)
	}
	return s
}

// TensionSection lists up to limit active tensions, oldest age first.
func TensionSection(tensions []types.Tension, limit int, now time.Time) Section {
	s := Section{Title: "Active tensions", Priority: PriorityMedium}
	for i, t := range tensions {
		if limit > 0 && i >= limit {
			break
		}
		age := now.Sub(t.DetectedAt).Round(time.Minute)
		s.Lines = append(s.Lines, fmt.Sprintf("- [%s] %s (%s ago)", t.Type, t.Description, age))
	}
	return s
}

// PrinciplesSection reminds the agent of its principle names.
func PrinciplesSection(names []string) Section {
	if len(names) == 0 {
		return Section{}
	}
	return Section{
		Title:    "Principles",
		Priority: PriorityLow,
		Lines:    []string{strings.Join(names, " · ")},
	}
}
