// Package inject builds the context block injected at turn start and the
// durable summary emitted before compaction. Blocks are token-budgeted and
// wrapped in boundary markers so they can be stripped from later input.
package inject

import (
	"cmp"
	"slices"
	"strings"

	"github.com/boshu2/driftwatch/internal/config"
)

// DefaultTokenBudget caps a block when none is configured.
const DefaultTokenBudget = 1500

// Priority orders sections for budgeting. Lower values are kept first.
type Priority int

const (
	PriorityCritical Priority = iota // Always kept
	PriorityHigh                     // Kept if space allows, else truncated
	PriorityMedium                   // Truncated to fit
	PriorityLow                      // Dropped if it does not fit
)

// Section is one titled part of a block.
type Section struct {
	Title    string
	Priority Priority
	Lines    []string
}

// render returns the section as markdown.
func (s Section) render() string {
	var b strings.Builder
	if s.Title != "" {
		b.WriteString("## " + s.Title + "\n")
	}
	for _, line := range s.Lines {
		b.WriteString(line + "\n")
	}
	return b.String()
}

// EstimateTokens estimates tokens from text length.
// Uses rough 4 chars per token approximation.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Builder assembles budgeted blocks.
type Builder struct {
	budget int
}

// NewBuilder creates a builder from config.
func NewBuilder(cfg config.InjectConfig) *Builder {
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Builder{budget: budget}
}

// Budget returns the token budget.
func (b *Builder) Budget() int {
	return b.budget
}

// Build renders sections within the budget and wraps the result in
// boundary markers. Sections are placed in priority order; critical ones
// are always kept, high and medium ones lose trailing lines to fit, and low
// ones are dropped whole. It returns "" when no section has content.
func (b *Builder) Build(sections []Section) string {
	sorted := make([]Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Lines) > 0 {
			sorted = append(sorted, s)
		}
	}
	if len(sorted) == 0 {
		return ""
	}
	slices.SortStableFunc(sorted, func(a, b Section) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	used := EstimateTokens(BeginMarker + "\n" + EndMarker + "\n")
	var parts []string
	for _, s := range sorted {
		text := s.render()
		cost := EstimateTokens(text + "\n")
		remaining := b.budget - used

		switch {
		case s.Priority == PriorityCritical || cost <= remaining:
			parts = append(parts, text)
			used += cost
		case s.Priority <= PriorityMedium:
			if trimmed, ok := truncateSection(s, remaining); ok {
				parts = append(parts, trimmed)
				used += EstimateTokens(trimmed + "\n")
			}
		}
		// Low priority sections are dropped if they don't fit
	}
	if len(parts) == 0 {
		return ""
	}
	return Wrap(strings.Join(parts, "\n"))
}

// truncateSection keeps as many leading lines as fit in maxTokens. A
// section reduced to its title alone is dropped.
func truncateSection(s Section, maxTokens int) (string, bool) {
	for n := len(s.Lines) - 1; n > 0; n-- {
		cut := Section{Title: s.Title, Lines: append(append([]string(nil), s.Lines[:n]...), "...")}
		text := cut.render()
		if EstimateTokens(text+"\n") <= maxTokens {
			return text, true
		}
	}
	return "", false
}
