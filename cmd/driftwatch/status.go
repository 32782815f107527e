package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/governance"
	"github.com/boshu2/driftwatch/internal/heartbeat"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/tension"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show an agent's drift state",
	Long: `Show the last entropy score, sustained tracking, recent history, active
tensions, pending feedback and the remaining investigation budget.

Examples:
  driftwatch status
  driftwatch status --agent reviewer -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// recentMemoryLimit caps each memory listing in the status view.
const recentMemoryLimit = 5

// statusView is the status command's output.
type statusView struct {
	monitor.Status
	Budget    governance.Decision `json:"investigation_budget"`
	Decisions []memory.Record     `json:"recent_decisions,omitempty"`
	Tensions  []memory.Record     `json:"recent_tension_records,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := openGovernance()
	if err != nil {
		return err
	}
	view, err := buildStatus(cmd.Context(), d, resolveAgentID(""), svc)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, view)
	}
	return writeStatusTable(w, view)
}

// buildStatus gathers the agent's state, its latest heartbeat decisions and
// tension records from the memory store, and the investigation budget.
func buildStatus(ctx context.Context, d *deps, id string, svc *governance.Service) (statusView, error) {
	agent, err := d.agent(id)
	if err != nil {
		return statusView{}, err
	}
	view := statusView{Status: agent.Status()}
	// Check only sweeps; an empty topic is never a duplicate.
	view.Budget = svc.Check("")

	recent := memory.SearchOptions{Limit: recentMemoryLimit, Sort: memory.SortRecent, Agent: agent.ID()}
	recent.Type = heartbeat.MemoryType
	if view.Decisions, err = d.memory.Search(ctx, "", recent); err != nil {
		logger.Warn("search heartbeat decisions failed", zap.Error(err))
	}
	recent.Type = tension.MemoryType
	if view.Tensions, err = d.memory.Search(ctx, "", recent); err != nil {
		logger.Warn("search tension records failed", zap.Error(err))
	}
	return view, nil
}

func writeStatusTable(w io.Writer, v statusView) error {
	sustained := "no"
	if v.Sustained.Sustained || v.Sustained.Turns > 0 {
		sustained = fmt.Sprintf("%t (%d turns, %.0f min)", v.Sustained.Sustained, v.Sustained.Turns, v.Sustained.Minutes)
	}
	pending := "none"
	if v.Pending != nil {
		pending = fmt.Sprintf("%d vectors at %.2f", len(v.Pending.Vectors), v.Pending.PreEntropy)
	}
	budget := fmt.Sprintf("%d/h, %d/day", v.Budget.HourlyRemaining, v.Budget.DailyRemaining)
	if !v.Budget.Allowed {
		budget += " (" + v.Budget.Reason + ")"
	}

	if err := formatter.KeyValues(w, [][2]string{
		{"Agent", v.AgentID},
		{"Session", orDash(v.SessionID)},
		{"Last entropy", fmt.Sprintf("%.2f", v.LastScore)},
		{"Critical", fmt.Sprintf("%t", v.Critical)},
		{"Sustained", sustained},
		{"Triggers", orDash(strings.Join(v.LastTriggers, ", "))},
		{"Pending feedback", pending},
		{"Feedback vectors", fmt.Sprintf("%d", len(v.Feedback))},
		{"Candidates", fmt.Sprintf("%d", v.Candidates)},
		{"Investigations left", budget},
	}); err != nil {
		return err
	}

	if len(v.History) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "TIME", "ENTROPY", "META")
		for _, h := range v.History {
			tbl.AddRow(h.Timestamp.Local().Format(time.DateTime), fmt.Sprintf("%.2f", h.Entropy), fmt.Sprintf("%d", h.MetaConceptCount))
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}

	if len(v.Decisions) > 0 {
		fmt.Fprintln(w)
		if err := writeMemoryTable(w, v.Decisions); err != nil {
			return err
		}
	}

	if len(v.ActiveTensions) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "TENSION", "TYPE", "DETECTED", "DESCRIPTION").SetMaxWidth(3, 60)
		for _, t := range v.ActiveTensions {
			tbl.AddRow(shortID(t.ID), t.Type, t.DetectedAt.Local().Format(time.DateTime), t.Description)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
