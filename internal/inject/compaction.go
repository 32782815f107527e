package inject

import (
	"fmt"
	"strings"
	"time"

	"github.com/boshu2/driftwatch/internal/types"
)

// Snapshot is the agent state worth carrying across compaction.
type Snapshot struct {
	AgentID        string
	SessionID      string
	Timestamp      time.Time
	LastScore      float64
	Sustained      bool
	SustainedTurns int
	RecentTriggers []string
	Tensions       []types.Tension
	InjectedIDs    []string
	LoopWarnings   []string
}

// PreCompaction renders a durable summary of s within the builder's budget.
// It returns "" when there is nothing worth preserving.
func (b *Builder) PreCompaction(s Snapshot) string {
	if s.LastScore == 0 && len(s.Tensions) == 0 && len(s.InjectedIDs) == 0 && len(s.LoopWarnings) == 0 {
		return ""
	}

	state := Section{Title: "Driftwatch state before compaction", Priority: PriorityCritical}
	state.Lines = append(state.Lines, fmt.Sprintf("Agent: %s  Session: %s  At: %s",
		orDash(s.AgentID), orDash(s.SessionID), s.Timestamp.UTC().Format(time.RFC3339)))
	state.Lines = append(state.Lines, fmt.Sprintf("Last entropy: %.2f", s.LastScore))
	if s.Sustained {
		state.Lines = append(state.Lines, fmt.Sprintf("Sustained high entropy for %d turns.", s.SustainedTurns))
	}
	if len(s.RecentTriggers) > 0 {
		state.Lines = append(state.Lines, "Recent triggers: "+strings.Join(s.RecentTriggers, ", "))
	}

	tensions := TensionSection(s.Tensions, 0, s.Timestamp)
	tensions.Priority = PriorityHigh

	return b.Build([]Section{
		state,
		tensions,
		bulletSection("Loop warnings", PriorityMedium, s.LoopWarnings),
		bulletSection("Vectors injected this session", PriorityLow, s.InjectedIDs),
	})
}

// bulletSection builds an optional section with bullet items.
func bulletSection(title string, p Priority, items []string) Section {
	s := Section{Title: title, Priority: p}
	for _, item := range items {
		s.Lines = append(s.Lines, "- "+item)
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
