package monitor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/entropy"
	"github.com/boshu2/driftwatch/internal/feedback"
	"github.com/boshu2/driftwatch/internal/heartbeat"
	"github.com/boshu2/driftwatch/internal/inject"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/pool"
	"github.com/boshu2/driftwatch/internal/principles"
	"github.com/boshu2/driftwatch/internal/telemetry"
	"github.com/boshu2/driftwatch/internal/tension"
	"github.com/boshu2/driftwatch/internal/types"
	"github.com/boshu2/driftwatch/internal/vectors"
)

// Hook names, used for spans and the CLI.
const (
	HookTurnStart     = "turn-start"
	HookTurnEnd       = "turn-end"
	HookToolCall      = "tool-call"
	HookPreCompaction = "pre-compact"
)

// CompactionMemoryType tags pre-compaction summaries in the memory store.
const CompactionMemoryType = "compaction_summary"

// candidateWeight is the confidence given to vectors learned from resolved
// tensions.
const candidateWeight = 0.5

// TurnStartInput is the host's view at the start of a turn.
type TurnStartInput struct {
	SessionID   string `json:"session_id,omitempty"`
	UserMessage string `json:"user_message,omitempty"`

	// Workspace is optional host context appended at low priority.
	Workspace string `json:"workspace,omitempty"`
}

// TurnStartOutput is the context to prepend to the next prompt.
type TurnStartOutput struct {
	// Context is the marked block, or "" when there is nothing to inject.
	Context string `json:"context,omitempty"`

	// Warning is the fragmentation warning when high entropy is sustained.
	Warning string `json:"warning,omitempty"`

	Vectors []vectors.Ranked `json:"vectors,omitempty"`
}

// TurnEndInput is a completed user/response pair.
type TurnEndInput struct {
	SessionID   string                 `json:"session_id,omitempty"`
	UserMessage string                 `json:"user_message"`
	Response    string                 `json:"response"`
	Quality     entropy.ContextQuality `json:"context_quality,omitempty"`
}

// TurnEndOutput reports what the turn changed.
type TurnEndOutput struct {
	Observation    types.Observation       `json:"observation"`
	Sustained      entropy.SustainedStatus `json:"sustained"`
	Critical       bool                    `json:"critical"`
	Detected       []types.Tension         `json:"detected_tensions,omitempty"`
	Resolved       []types.Tension         `json:"resolved_tensions,omitempty"`
	FeedbackClosed int                     `json:"feedback_closed"`
	Decision       *heartbeat.Decision     `json:"decision,omitempty"`
	Candidates     []pool.AddResult        `json:"candidates,omitempty"`
}

// ToolCallInput is one tool invocation and its output.
type ToolCallInput struct {
	SessionID string         `json:"session_id,omitempty"`
	Tool      string         `json:"tool"`
	Output    string         `json:"output,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// OnTurnStart ranks growth vectors against the incoming message, opens a
// feedback batch for the injected ones and renders the budgeted block.
func (a *Agent) OnTurnStart(ctx context.Context, in TurnStartInput) TurnStartOutput {
	ctx, span := a.telemetry.StartHook(ctx, HookTurnStart, a.id)
	defer telemetry.EndHook(span, nil)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginSessionLocked(in.SessionID)

	user := inject.Strip(in.UserMessage)
	last := a.scorer.LastScore()
	sus := a.sustainedLocked()

	ranked := a.ranker.Relevant(ctx, user, last, vectors.Options{Triggers: a.lastTriggers})
	injected := make([]feedback.Injected, 0, len(ranked))
	for _, r := range ranked {
		injected = append(injected, feedback.Injected{ID: r.Vector.ID, Relevance: r.Score})
		a.session.InjectedIDs = appendUnique(a.session.InjectedIDs, r.Vector.ID)
	}
	a.feedback.BeginInjection(last, injected)
	a.telemetry.RecordInjected(ctx, a.id, len(injected))

	var sections []inject.Section
	if len(a.scorer.History()) > 0 {
		sections = append(sections, inject.EntropySection(last, sus.Sustained, sus.Turns, sus.Minutes))
	}
	sections = append(sections,
		inject.VectorSection(ranked),
		inject.TensionSection(a.tensions.Active(a.session.SessionID), a.cfg.Inject.MaxTensions, a.now()),
		inject.PrinciplesSection(a.readPrinciples().Principles),
	)
	if ws := strings.TrimSpace(in.Workspace); ws != "" {
		sections = append(sections, inject.Section{
			Title:    "Workspace",
			Priority: inject.PriorityLow,
			Lines:    strings.Split(ws, "\n"),
		})
	}

	out := TurnStartOutput{
		Context: a.builder.Build(sections),
		Vectors: ranked,
	}
	if sus.Sustained {
		out.Warning = inject.FragmentationWarning(sus.Turns, sus.Minutes)
	}

	a.saveLocked()
	return out
}

// OnTurnEnd scores the completed turn, logs the observation, processes
// tensions, closes the pending feedback batch and records heartbeat
// decisions. Resolved tensions are offered to the candidate pool.
func (a *Agent) OnTurnEnd(ctx context.Context, in TurnEndInput) TurnEndOutput {
	ctx, span := a.telemetry.StartHook(ctx, HookTurnEnd, a.id)
	defer telemetry.EndHook(span, nil)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginSessionLocked(in.SessionID)

	user := inject.Strip(in.UserMessage)
	response := in.Response

	dr := a.detectors.RunAll(user, response)
	bd := a.scorer.ScoreDetailed(user, response, dr, in.Quality)
	sus := a.scorer.TrackSustained(bd.Score)

	obs := types.Observation{
		Timestamp:          a.now().UTC(),
		AgentID:            a.id,
		SessionID:          a.session.SessionID,
		CompositeScore:     bd.Score,
		SustainedTurnCount: sus.Turns,
		DetectorResults:    dr,
		UserLength:         len(user),
		ResponseLength:     len(response),
		Triggers:           bd.Triggers,
		LexicalEntropy:     entropy.Shannon(response),
	}
	a.scorer.LogObservation(obs)
	a.lastTriggers = bd.Triggers
	a.telemetry.RecordEntropy(ctx, a.id, bd.Score, sus.Sustained)

	tres := a.tensions.Process(ctx, a.session.SessionID, user, response, bd.Score, a.readPrinciples())
	out := TurnEndOutput{
		Observation:    obs,
		Sustained:      sus,
		Critical:       a.scorer.Critical(bd.Score),
		Detected:       tres.Detected,
		Resolved:       tres.Resolved,
		FeedbackClosed: a.feedback.Close(bd.Score, len(tres.Detected) > 0),
	}
	if d, ok := a.heartbeat.Record(ctx, user, response, bd.Score); ok {
		out.Decision = &d
	}
	out.Candidates = a.learnLocked(ctx, tres.Resolved)

	if sus.Sustained {
		a.logger.Info("sustained high entropy",
			zap.Float64("score", bd.Score), zap.Int("turns", sus.Turns), zap.Float64("minutes", sus.Minutes))
	}
	a.saveLocked()
	return out
}

// learnLocked turns resolved tensions into growth-vector candidates.
func (a *Agent) learnLocked(ctx context.Context, resolved []types.Tension) []pool.AddResult {
	var out []pool.AddResult
	for _, ts := range resolved {
		v := types.GrowthVector{
			Type:                  ts.Type,
			Description:           ts.Description,
			IntegrationHypothesis: "resolved in session " + ts.SessionID,
			Weight:                candidateWeight,
		}
		if ts.Type == tension.TypeCorrection {
			v.EntropySource = entropy.TriggerCorrection
		}
		res, err := a.pool.AddCandidate(ctx, v)
		if err != nil {
			a.logger.Warn("add growth candidate failed", zap.String("tension", ts.ID), zap.Error(err))
			continue
		}
		out = append(out, res)
	}
	return out
}

// OnToolCall records the call and returns a loop warning, or "".
func (a *Agent) OnToolCall(ctx context.Context, in ToolCallInput) string {
	ctx, span := a.telemetry.StartHook(ctx, HookToolCall, a.id)
	defer telemetry.EndHook(span, nil)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginSessionLocked(in.SessionID)

	res := a.loops.RecordAndCheck(in.Tool, in.Output, in.Params)
	if res.LoopDetected {
		a.telemetry.RecordLoop(ctx, a.id, string(res.Type))
		a.addLoopWarningLocked(res.Message)
		a.logger.Info("tool loop detected", zap.String("tool", in.Tool), zap.String("type", string(res.Type)))
	}
	a.saveLocked()
	return res.Message
}

// OnPreCompaction returns a durable summary of the session and stores it in
// the memory store. It returns "" when there is nothing worth keeping.
func (a *Agent) OnPreCompaction(ctx context.Context) string {
	ctx, span := a.telemetry.StartHook(ctx, HookPreCompaction, a.id)
	defer telemetry.EndHook(span, nil)

	a.mu.Lock()
	defer a.mu.Unlock()

	sus := a.sustainedLocked()
	summary := a.builder.PreCompaction(inject.Snapshot{
		AgentID:        a.id,
		SessionID:      a.session.SessionID,
		Timestamp:      a.now().UTC(),
		LastScore:      a.scorer.LastScore(),
		Sustained:      sus.Sustained,
		SustainedTurns: sus.Turns,
		RecentTriggers: a.lastTriggers,
		Tensions:       a.tensions.Active(a.session.SessionID),
		InjectedIDs:    a.session.InjectedIDs,
		LoopWarnings:   a.session.LoopWarnings,
	})
	if summary == "" {
		return ""
	}
	meta := map[string]string{
		memory.MetaType:  CompactionMemoryType,
		memory.MetaAgent: a.id,
		"session_id":     a.session.SessionID,
	}
	if _, err := a.memory.Store(ctx, inject.Unwrap(summary), meta); err != nil {
		a.logger.Warn("store compaction summary failed", zap.Error(err))
	}
	return summary
}

// readPrinciples returns the current principles document, or an empty one
// when it cannot be read.
func (a *Agent) readPrinciples() principles.Document {
	doc, err := a.principles.Read()
	if err != nil {
		a.logger.Warn("read principles failed", zap.Error(err))
	}
	return doc
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
