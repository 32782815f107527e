package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/feedback"
	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/governance"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/telemetry"
	"github.com/boshu2/driftwatch/internal/types"
)

// setupGlobals points the package globals at a scratch data directory.
func setupGlobals(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	c := config.Default()
	c.BaseDir = dir
	c.Memory.Backend = "none"
	c.Paths.PrinciplesFile = filepath.Join(dir, "IDENTITY.md")

	prevCfg, prevLogger, prevAgent, prevOutput := cfg, logger, agentID, output
	cfg, logger, agentID, output = c, zap.NewNop(), "", ""
	t.Cleanup(func() {
		cfg, logger, agentID, output = prevCfg, prevLogger, prevAgent, prevOutput
	})
	return dir
}

func newTestAgent(t *testing.T, d *deps, id string) *monitor.Agent {
	t.Helper()
	a, err := d.agent(id)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func openTestDeps(t *testing.T) *deps {
	t.Helper()
	d, err := openDeps()
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// noon keeps governance requests outside the default quiet hours.
func noon() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
}

func TestDispatchHook_TurnEnd(t *testing.T) {
	setupGlobals(t)
	a := newTestAgent(t, openTestDeps(t), "main")

	raw := []byte(`{"session_id":"s1","user_message":"actually that's wrong","response":"Understood."}`)
	result, text, err := dispatchHook(context.Background(), a, monitor.HookTurnEnd, raw)
	require.NoError(t, err)
	assert.Empty(t, text)

	out, ok := result.(monitor.TurnEndOutput)
	require.True(t, ok, "result type %T", result)
	assert.InDelta(t, 0.4, out.Observation.CompositeScore, 1e-9)
	assert.Equal(t, "s1", out.Observation.SessionID)
}

func TestDispatchHook_ToolCallAndCompaction(t *testing.T) {
	setupGlobals(t)
	a := newTestAgent(t, openTestDeps(t), "main")
	ctx := context.Background()

	result, text, err := dispatchHook(ctx, a, monitor.HookToolCall, []byte(`{"tool":"search","output":"x"}`))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, map[string]string{"warning": ""}, result)

	_, _, err = dispatchHook(ctx, a, monitor.HookPreCompaction, nil)
	assert.NoError(t, err)
}

func TestDispatchHook_Errors(t *testing.T) {
	setupGlobals(t)
	a := newTestAgent(t, openTestDeps(t), "main")

	_, _, err := dispatchHook(context.Background(), a, "turn-middle", nil)
	assert.ErrorIs(t, err, errUnknownHook)

	_, _, err = dispatchHook(context.Background(), a, monitor.HookTurnEnd, []byte(`{"user_message":`))
	assert.Error(t, err)
}

func TestWriteHookResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHookResult(&buf, formatter.FormatTable, map[string]string{"warning": ""}, ""))
	assert.Empty(t, buf.String())

	require.NoError(t, writeHookResult(&buf, formatter.FormatTable, nil, "loop detected"))
	assert.Equal(t, "loop detected\n", buf.String())

	buf.Reset()
	require.NoError(t, writeHookResult(&buf, formatter.FormatJSON, map[string]string{"summary": "s"}, "s"))
	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "s", got["summary"])
}

func TestDecodeInput(t *testing.T) {
	var env agentEnvelope
	raw, err := decodeInput(strings.NewReader("  \n"), &env)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = decodeInput(strings.NewReader(`{"agent_id":"reviewer","tool":"Read"}`), &env)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", env.AgentID)
	assert.Contains(t, string(raw), `"tool":"Read"`)

	_, err = decodeInput(strings.NewReader("{"), &env)
	assert.Error(t, err)
}

func TestResolveAgentID(t *testing.T) {
	setupGlobals(t)
	assert.Equal(t, monitor.DefaultAgentID, resolveAgentID(""))
	agentID = "flagged"
	assert.Equal(t, "flagged", resolveAgentID(""))
	assert.Equal(t, "event", resolveAgentID("event"))
}

// newTestServer wires a server over d with governance pinned to noon.
func newTestServer(t *testing.T, d *deps, out io.Writer) *server {
	t.Helper()
	svc, err := openGovernance(governance.WithClock(noon))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)

	registry := monitor.NewRegistry(func(id string) (*monitor.Agent, error) { return d.agent(id) })
	t.Cleanup(registry.Close)
	return &server{registry: registry, svc: svc, telemetry: d.telemetry, enc: formatter.NewLineEncoder(out)}
}

func decodeReplies(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var replies []map[string]any
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var r map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		replies = append(replies, r)
	}
	return replies
}

func TestServerLoop(t *testing.T) {
	setupGlobals(t)
	var out bytes.Buffer
	srv := newTestServer(t, openTestDeps(t), &out)

	input := strings.Join([]string{
		`{"id":"1","hook":"turn-end","agent_id":"alpha","payload":{"user_message":"actually that's wrong","response":"Understood."}}`,
		`{"id":"2","hook":"tool-call","agent_id":"beta","payload":{"tool":"search","output":"x"}}`,
		``,
		`{"id":"3","hook":"investigate","payload":{"topic":"flaky cache test"}}`,
		`{"id":"4","hook":"investigate","payload":{"topic":"flaky cache test"}}`,
		`{"id":"5","hook":"turn-middle"}`,
		`not json`,
	}, "\n")
	require.NoError(t, srv.loop(context.Background(), strings.NewReader(input)))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 6)

	assert.Equal(t, "1", replies[0]["id"])
	assert.Equal(t, "alpha", replies[0]["agent_id"])
	obs := replies[0]["result"].(map[string]any)["observation"].(map[string]any)
	assert.InDelta(t, 0.4, obs["composite_score"], 1e-9)

	assert.Equal(t, "beta", replies[1]["agent_id"])
	assert.Nil(t, replies[1]["error"])

	first := replies[2]["result"].(map[string]any)
	assert.Equal(t, true, first["allowed"])
	second := replies[3]["result"].(map[string]any)
	assert.Equal(t, false, second["allowed"])
	assert.Equal(t, governance.ReasonDuplicate, second["reason"])

	assert.Contains(t, replies[4]["error"], "unknown hook")
	assert.Contains(t, replies[5]["error"], "decode event")

	// The unknown hook still resolved the default agent.
	assert.Equal(t, []string{"alpha", "beta", monitor.DefaultAgentID}, srv.registry.IDs())
}

func TestServerLoop_Metrics(t *testing.T) {
	setupGlobals(t)
	var out bytes.Buffer
	srv := newTestServer(t, openTestDeps(t), &out)

	input := strings.Join([]string{
		`{"id":"1","hook":"turn-end","agent_id":"alpha","payload":{"user_message":"actually that's wrong","response":"Understood."}}`,
		`{"id":"2","hook":"turn-end","agent_id":"beta","payload":{"user_message":"looks good","response":"Thanks."}}`,
		`{"id":"3","hook":"metrics"}`,
	}, "\n")
	require.NoError(t, srv.loop(context.Background(), strings.NewReader(input)))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 3)
	points, ok := replies[2]["result"].([]any)
	require.True(t, ok, "metrics result %T", replies[2]["result"])

	perAgent := make(map[string]float64)
	for _, raw := range points {
		p := raw.(map[string]any)
		if p["name"] != telemetry.MetricEntropyScore {
			continue
		}
		attrs := p["attributes"].(map[string]any)
		perAgent[attrs["agent.id"].(string)] += p["count"].(float64)
	}
	assert.Equal(t, map[string]float64{"alpha": 1, "beta": 1}, perAgent)
}

func TestServerLoop_StopsOnCancel(t *testing.T) {
	setupGlobals(t)
	srv := newTestServer(t, openTestDeps(t), &bytes.Buffer{})

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.loop(ctx, pr)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server loop did not stop after cancel")
	}
}

func TestDeps_SharedPrinciplesWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	setupGlobals(t)
	require.NoError(t, os.WriteFile(cfg.Paths.PrinciplesFile, []byte("## Verify First\n"), 0600))

	d, err := openDeps()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.watch(ctx)

	agents := make([]*monitor.Agent, 0, 3)
	for _, id := range []string{"alpha", "beta", "gamma"} {
		a, err := d.agent(id)
		require.NoError(t, err)
		a.Watch(ctx)
		agents = append(agents, a)
	}
	for _, a := range agents {
		a.Close()
	}
	assert.True(t, d.principles.Watching(), "agents never stop the shared watcher")

	d.Close()
	assert.False(t, d.principles.Watching())
}

func TestBuildStatus_RecentMemories(t *testing.T) {
	setupGlobals(t)
	cfg.Memory.Backend = "sqlite"
	d := openTestDeps(t)

	svc, err := openGovernance(governance.WithClock(noon))
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	ctx := context.Background()
	for _, id := range []string{"main", "other"} {
		a := newTestAgent(t, d, id)
		a.OnTurnEnd(ctx, monitor.TurnEndInput{
			SessionID:   "s1",
			UserMessage: "Heartbeat: anything to do?",
			Response:    "DECISION: wait for " + id + "\nREASON: no open work",
		})
		a.OnTurnEnd(ctx, monitor.TurnEndInput{SessionID: "s1", UserMessage: "actually that's wrong", Response: "Understood."})
	}

	view, err := buildStatus(ctx, d, "main", svc)
	require.NoError(t, err)
	require.Len(t, view.Decisions, 1)
	assert.Contains(t, view.Decisions[0].Content, "wait for main")
	require.Len(t, view.Tensions, 1)
	assert.Equal(t, "main", view.Tensions[0].Metadata[memory.MetaAgent])
	assert.True(t, view.Budget.Allowed)

	var buf bytes.Buffer
	require.NoError(t, writeStatusTable(&buf, view))
	assert.Contains(t, buf.String(), "Decision: wait for main")
	assert.NotContains(t, buf.String(), "wait for other")
}

func TestMemorySearchCommand(t *testing.T) {
	setupGlobals(t)
	cfg.Memory.Backend = "sqlite"
	d := openTestDeps(t)
	a := newTestAgent(t, d, "main")
	a.OnTurnEnd(context.Background(), monitor.TurnEndInput{
		UserMessage: "Heartbeat: anything to do?",
		Response:    "DECISION: rerun the cache tests\nREASON: flaky",
	})
	d.Close()

	prevType, prevLimit := memoryType, memoryLimit
	memoryType, memoryLimit = "heartbeat_decision", 5
	t.Cleanup(func() { memoryType, memoryLimit = prevType, prevLimit })

	var buf bytes.Buffer
	memorySearchCmd.SetOut(&buf)
	t.Cleanup(func() { memorySearchCmd.SetOut(nil) })
	memorySearchCmd.SetContext(context.Background())
	require.NoError(t, runMemorySearch(memorySearchCmd, []string{"cache tests"}))
	assert.Contains(t, buf.String(), "rerun the cache tests")
	assert.Contains(t, buf.String(), "heartbeat_decision")
}

func TestWriteStatusTable(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	view := statusView{
		Status: monitor.Status{
			AgentID:      "main",
			SessionID:    "s1",
			LastScore:    0.9,
			LastTriggers: []string{"correction", "emotional"},
			History:      []types.HistoryPoint{{Timestamp: at, Entropy: 0.9, MetaConceptCount: 2}},
			ActiveTensions: []types.Tension{{
				ID:          "tension-0123456789",
				Type:        "correction",
				Description: "user corrected the agent",
				DetectedAt:  at,
			}},
			Pending: &feedback.Pending{Vectors: []feedback.Injected{{ID: "gv-1"}}, PreEntropy: 0.9},
		},
		Budget: governance.Decision{Reason: governance.ReasonQuietHours, HourlyRemaining: 3, DailyRemaining: 10},
	}

	var buf bytes.Buffer
	require.NoError(t, writeStatusTable(&buf, view))
	got := buf.String()
	assert.Contains(t, got, "correction, emotional")
	assert.Contains(t, got, "1 vectors at 0.90")
	assert.Contains(t, got, "3/h, 10/day (quiet_hours)")
	assert.Contains(t, got, "ENTROPY")
	assert.Contains(t, got, "tension-")
	assert.NotContains(t, got, "tension-0123456789")
}

const analyzeTranscriptFixture = `{"type":"user","sessionId":"s1","timestamp":"2026-01-24T10:00:00Z","message":{"role":"user","content":"please fix the cache invalidation bug in the loader"}}
{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"text","text":"Fixed it."},{"type":"tool_use","id":"tu1","name":"Read","input":{"file_path":"/tmp/loader.go"}}]}}
{"type":"user","sessionId":"s1","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu1","content":"package vectors"}]}}
{"type":"user","sessionId":"s1","timestamp":"2026-01-24T10:05:00Z","message":{"role":"user","content":"actually that's wrong"}}
{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":"Understood."}}
`

func TestAnalyzeTranscript(t *testing.T) {
	setupGlobals(t)
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(analyzeTranscriptFixture), 0600))

	tel, err := telemetry.NewPipeline(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	report, err := analyzeTranscript(context.Background(), path, tel.Telemetry)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Turns)
	assert.Equal(t, []string{"s1"}, report.Sessions)
	assert.GreaterOrEqual(t, report.MaxScore, 0.4)
	assert.Equal(t, 1, report.Triggers["correction"])
	assert.GreaterOrEqual(t, report.Tensions, 1)

	points, err := tel.Snapshot(context.Background())
	require.NoError(t, err)
	var scored uint64
	for _, p := range points {
		if p.Name == telemetry.MetricEntropyScore {
			scored += p.Count
		}
	}
	assert.Equal(t, uint64(2), scored)

	// Analysis never touches the live data directory.
	entries, err := os.ReadDir(cfg.BaseDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalyzeTranscript_Missing(t *testing.T) {
	setupGlobals(t)
	_, err := analyzeTranscript(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	assert.Error(t, err)
}

func TestCollectTranscripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0700))
	for _, name := range []string{"b.jsonl", "notes.txt", filepath.Join("sub", "a.jsonl")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0600))
	}
	single := filepath.Join(dir, "notes.txt")

	files, err := collectTranscripts([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.jsonl"),
		single,
		filepath.Join(dir, "sub", "a.jsonl"),
	}, files)

	_, err = collectTranscripts([]string{filepath.Join(dir, "nope")})
	assert.Error(t, err)
}

func TestTopTrigger(t *testing.T) {
	assert.Empty(t, topTrigger(nil))
	assert.Equal(t, "emotional", topTrigger(map[string]int{"correction": 1, "emotional": 3}))
	assert.Equal(t, "correction", topTrigger(map[string]int{"paradox": 2, "correction": 2}))
}
