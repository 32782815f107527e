// Package loopdetect spots repetitive tool-use loops from a bounded history
// of recent tool calls.
package loopdetect

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/ring"
	"github.com/boshu2/driftwatch/internal/types"
)

// LoopType names which check fired.
type LoopType string

const (
	LoopNone             LoopType = ""
	LoopConsecutiveTool  LoopType = "consecutive_tool"
	LoopFileReread       LoopType = "file_reread"
	LoopOutputRepetition LoopType = "output_repetition"
)

// repetitionWindow is the number of trailing identical outputs that count
// as repetition.
const repetitionWindow = 3

// pathParams are the tool parameter keys that may carry a file path.
var pathParams = []string{"file_path", "path", "filePath", "notebook_path"}

// Result is the outcome of one RecordAndCheck call.
type Result struct {
	LoopDetected bool     `json:"loop_detected"`
	Type         LoopType `json:"type,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// Detector holds one session's tool history. It is not safe for concurrent
// use and keeps no state on disk.
type Detector struct {
	consecutive int
	reread      int

	exempt []glob.Glob
	read   []glob.Glob

	calls *ring.Buffer[types.ToolCallRecord]
	reads map[string]int
	now   func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides time.Now for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// New compiles the exempt and read tool globs.
func New(cfg config.LoopConfig, opts ...Option) (*Detector, error) {
	exempt, err := compileGlobs(cfg.ExemptTools)
	if err != nil {
		return nil, err
	}
	read, err := compileGlobs(cfg.ReadTools)
	if err != nil {
		return nil, err
	}
	d := &Detector{
		consecutive: cfg.ConsecutiveThreshold,
		reread:      cfg.RereadThreshold,
		exempt:      exempt,
		read:        read,
		calls:       ring.New[types.ToolCallRecord](cfg.HistorySize),
		reads:       make(map[string]int),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidGlob, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// RecordAndCheck records the call and then runs the consecutive-tool,
// file-reread and output-repetition checks in that order. Exempt tools are
// recorded but never checked.
func (d *Detector) RecordAndCheck(toolName, output string, params map[string]any) Result {
	d.calls.Push(types.ToolCallRecord{
		Tool:       toolName,
		OutputHash: HashOutput(output),
		Timestamp:  d.now(),
	})

	path := resolvePath(params)
	if path != "" && matchAny(d.read, toolName) {
		d.reads[path]++
	}

	if matchAny(d.exempt, toolName) {
		return Result{}
	}

	if d.consecutiveTool(toolName) {
		return Result{
			LoopDetected: true,
			Type:         LoopConsecutiveTool,
			Message: fmt.Sprintf("Loop detected: %s called %d times in a row. Step back and try a different approach.",
				toolName, d.consecutive),
		}
	}
	if path != "" && d.reads[path] >= d.reread {
		return Result{
			LoopDetected: true,
			Type:         LoopFileReread,
			Message: fmt.Sprintf("Loop detected: %s has been read %d times this session. Its content has not changed.",
				path, d.reads[path]),
		}
	}
	if d.outputRepetition() {
		return Result{
			LoopDetected: true,
			Type:         LoopOutputRepetition,
			Message: fmt.Sprintf("Loop detected: the last %d tool calls returned identical output.",
				repetitionWindow),
		}
	}
	return Result{}
}

func (d *Detector) consecutiveTool(toolName string) bool {
	last := d.calls.Last(d.consecutive)
	if len(last) < d.consecutive {
		return false
	}
	for _, c := range last {
		if c.Tool != toolName {
			return false
		}
	}
	return true
}

func (d *Detector) outputRepetition() bool {
	last := d.calls.Last(repetitionWindow)
	if len(last) < repetitionWindow || last[0].OutputHash == 0 {
		return false
	}
	for _, c := range last[1:] {
		if c.OutputHash != last[0].OutputHash {
			return false
		}
	}
	return true
}

// Reset clears the call history and read counters. Call it at session
// boundaries.
func (d *Detector) Reset() {
	d.calls.Clear()
	d.reads = make(map[string]int)
}

// Calls returns the recorded history, oldest first.
func (d *Detector) Calls() []types.ToolCallRecord {
	return d.calls.Slice()
}

// State is a detector's session history. One-shot hook processes carry it
// between invocations; long-lived agents keep it in memory only.
type State struct {
	Calls []types.ToolCallRecord `json:"calls,omitempty"`
	Reads map[string]int         `json:"reads,omitempty"`
}

// State snapshots the call history and read counters.
func (d *Detector) State() State {
	reads := make(map[string]int, len(d.reads))
	for k, v := range d.reads {
		reads[k] = v
	}
	return State{Calls: d.calls.Slice(), Reads: reads}
}

// Restore replaces the session history with s, keeping the newest calls
// that fit the configured history size.
func (d *Detector) Restore(s State) {
	d.calls = ring.From(d.calls.Cap(), s.Calls)
	d.reads = make(map[string]int, len(s.Reads))
	for k, v := range s.Reads {
		d.reads[filepath.Clean(k)] = v
	}
}

// ReadCount returns how many times path was read this session.
func (d *Detector) ReadCount(path string) int {
	return d.reads[filepath.Clean(path)]
}

// HashOutput returns the 32-bit FNV-1a hash of output. Empty output hashes
// to zero, which the repetition check treats as no signal.
func HashOutput(output string) uint32 {
	if output == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(output)) //nolint:errcheck // hash.Hash never errors
	return h.Sum32()
}

func resolvePath(params map[string]any) string {
	for _, key := range pathParams {
		if v, ok := params[key].(string); ok && v != "" {
			return filepath.Clean(v)
		}
	}
	return ""
}
