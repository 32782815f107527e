package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/parser"
	"github.com/boshu2/driftwatch/internal/telemetry"
	"github.com/boshu2/driftwatch/internal/worker"
)

var analyzeConcurrency int

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files or directories...]",
	Short: "Replay transcripts through an isolated monitor",
	Long: `Replay Claude Code JSONL transcripts turn by turn through a fresh monitor
and report the drift each one would have produced. Every file gets its own
temporary data directory, so analysis never touches the live agent state.

Directories are searched recursively for *.jsonl files. With no arguments
the configured transcripts directory is used.

Examples:
  driftwatch analyze ~/.claude/projects/myproject/session.jsonl
  driftwatch analyze ~/.claude/projects --concurrency 8 -o json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 0, "Files replayed in parallel (default: CPU count)")
	rootCmd.AddCommand(analyzeCmd)
}

// transcriptReport summarizes one replayed transcript.
type transcriptReport struct {
	File           string         `json:"file"`
	Sessions       []string       `json:"sessions,omitempty"`
	Turns          int            `json:"turns"`
	MalformedLines int            `json:"malformed_lines"`
	MaxScore       float64        `json:"max_score"`
	MeanScore      float64        `json:"mean_score"`
	CriticalTurns  int            `json:"critical_turns"`
	Sustained      bool           `json:"sustained"`
	LoopWarnings   int            `json:"loop_warnings"`
	Tensions       int            `json:"tensions"`
	Triggers       map[string]int `json:"triggers,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	roots := args
	if len(roots) == 0 {
		roots = []string{cfg.Paths.TranscriptsDir}
	}
	files, err := collectTranscripts(roots)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errNoFiles
	}
	logger.Debug("analyzing transcripts", zap.Int("files", len(files)))

	tel, err := telemetry.NewPipeline(logger.Named("telemetry"))
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(context.Background()) //nolint:errcheck // in-process providers only
	}()

	results := worker.NewPool[transcriptReport](analyzeConcurrency).Process(cmd.Context(), files,
		func(ctx context.Context, path string) (transcriptReport, error) {
			return analyzeTranscript(ctx, path, tel.Telemetry)
		})
	reports := make([]transcriptReport, len(results))
	for i, r := range results {
		reports[i] = r.Value
		reports[i].File = r.Item
		if r.Err != nil {
			reports[i].Error = r.Err.Error()
			logger.Warn("analyze transcript failed", zap.String("file", r.Item), zap.Error(r.Err))
		}
	}

	points, err := tel.Snapshot(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, struct {
			Transcripts []transcriptReport `json:"transcripts"`
			Metrics     []telemetry.Point  `json:"metrics,omitempty"`
		}{reports, points})
	}
	if err := writeAnalyzeTable(w, reports); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return writeMetricsTable(w, points)
}

// writeMetricsTable prints one row per collected series.
func writeMetricsTable(w io.Writer, points []telemetry.Point) error {
	tbl := formatter.NewTable(w, "METRIC", "ATTRIBUTES", "COUNT", "SUM", "MIN", "MAX").SetMaxWidth(1, 40)
	for _, p := range points {
		attrs := make([]string, 0, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs = append(attrs, k+"="+v)
		}
		sort.Strings(attrs)
		tbl.AddRow(p.Name, orDash(strings.Join(attrs, " ")), fmt.Sprintf("%d", p.Count),
			fmt.Sprintf("%.3f", p.Sum), fmt.Sprintf("%.3f", p.Min), fmt.Sprintf("%.3f", p.Max))
	}
	return tbl.Render()
}

// collectTranscripts expands directories into their *.jsonl files.
func collectTranscripts(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// analyzeTranscript replays path through an agent rooted in a temporary
// directory. The agent's clock follows the transcript timestamps so
// sustained tracking sees the original pacing. Every replay records into
// tel, so the instruments aggregate across files.
func analyzeTranscript(ctx context.Context, path string, tel *telemetry.Telemetry) (transcriptReport, error) {
	report := transcriptReport{File: path}

	parsed, err := parser.NewParser().ParseFile(path)
	if err != nil {
		return report, err
	}
	report.MalformedLines = parsed.MalformedLines
	turns := parser.Turns(parsed.Messages)

	dir, err := os.MkdirTemp("", "driftwatch-analyze-*")
	if err != nil {
		return report, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // scratch cleanup

	isolated := *cfg
	isolated.BaseDir = dir
	isolated.Memory.Backend = "none"

	var clock time.Time
	agent, err := monitor.NewAgent(&isolated, monitor.DefaultAgentID,
		monitor.WithLogger(logger.Named("analyze")),
		monitor.WithMemory(memory.Nop{}),
		monitor.WithClock(func() time.Time { return clock }),
		monitor.WithTelemetry(tel),
	)
	if err != nil {
		return report, err
	}
	defer agent.Close()

	sessions := make(map[string]bool)
	var total float64
	for _, turn := range turns {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch {
		case !turn.Timestamp.IsZero():
			clock = turn.Timestamp
		case clock.IsZero():
			clock = time.Now()
		default:
			clock = clock.Add(time.Minute)
		}
		if turn.SessionID != "" && !sessions[turn.SessionID] {
			sessions[turn.SessionID] = true
			report.Sessions = append(report.Sessions, turn.SessionID)
		}

		agent.OnTurnStart(ctx, monitor.TurnStartInput{SessionID: turn.SessionID, UserMessage: turn.User})
		for _, tc := range turn.Tools {
			warning := agent.OnToolCall(ctx, monitor.ToolCallInput{
				SessionID: turn.SessionID,
				Tool:      tc.Name,
				Output:    tc.Output,
				Params:    tc.Input,
			})
			if warning != "" {
				report.LoopWarnings++
			}
		}
		out := agent.OnTurnEnd(ctx, monitor.TurnEndInput{
			SessionID:   turn.SessionID,
			UserMessage: turn.User,
			Response:    turn.Response,
		})

		score := out.Observation.CompositeScore
		report.Turns++
		total += score
		report.MaxScore = max(report.MaxScore, score)
		if out.Critical {
			report.CriticalTurns++
		}
		if out.Sustained.Sustained {
			report.Sustained = true
		}
		report.Tensions += len(out.Detected)
		for _, t := range out.Observation.Triggers {
			if report.Triggers == nil {
				report.Triggers = make(map[string]int)
			}
			report.Triggers[t]++
		}
	}
	if report.Turns > 0 {
		report.MeanScore = total / float64(report.Turns)
	}
	return report, nil
}

func writeAnalyzeTable(w io.Writer, reports []transcriptReport) error {
	tbl := formatter.NewTable(w, "FILE", "TURNS", "MAX", "MEAN", "CRITICAL", "SUSTAINED", "LOOPS", "TENSIONS", "TOP TRIGGER").
		SetMaxWidth(0, 40)
	for _, r := range reports {
		if r.Error != "" {
			tbl.AddRow(filepath.Base(r.File), "-", "-", "-", "-", "-", "-", "-", "error: "+r.Error)
			continue
		}
		sustained := "no"
		if r.Sustained {
			sustained = "yes"
		}
		tbl.AddRow(filepath.Base(r.File),
			fmt.Sprintf("%d", r.Turns),
			fmt.Sprintf("%.2f", r.MaxScore),
			fmt.Sprintf("%.2f", r.MeanScore),
			fmt.Sprintf("%d", r.CriticalTurns),
			sustained,
			fmt.Sprintf("%d", r.LoopWarnings),
			fmt.Sprintf("%d", r.Tensions),
			orDash(topTrigger(r.Triggers)))
	}
	return tbl.Render()
}

// topTrigger returns the most frequent trigger, breaking ties by name.
func topTrigger(counts map[string]int) string {
	var best string
	for name, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && name < best) {
			best = name
		}
	}
	return best
}
