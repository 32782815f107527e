package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/governance"
	"github.com/boshu2/driftwatch/internal/memory"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/principles"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/telemetry"
)

// deps holds the collaborators every agent of one process shares. The
// principles reader and its watcher belong to deps, not to any agent.
type deps struct {
	memory     memory.Store
	principles *principles.Reader
	telemetry  *telemetry.Pipeline
}

// openDeps opens the configured memory store and the telemetry pipeline.
// Call Close when done.
func openDeps() (*deps, error) {
	mem, err := memory.Open(cfg.Memory, cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	tel, err := telemetry.NewPipeline(logger.Named("telemetry"))
	if err != nil {
		_ = mem.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("start telemetry: %w", err)
	}
	return &deps{
		memory:     mem,
		principles: principles.NewReader(cfg.Paths.PrinciplesFile, principles.WithLogger(logger)),
		telemetry:  tel,
	}, nil
}

// watch starts the shared principles watcher. Close stops it.
func (d *deps) watch(ctx context.Context) {
	if err := d.principles.Watch(ctx); err != nil {
		logger.Warn("watch principles failed", zap.Error(err))
	}
}

// agent builds the pipeline for id with the shared collaborators.
func (d *deps) agent(id string, opts ...monitor.Option) (*monitor.Agent, error) {
	base := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithMemory(d.memory),
		monitor.WithPrinciples(d.principles),
		monitor.WithTelemetry(d.telemetry.Telemetry),
	}
	return monitor.NewAgent(cfg, id, append(base, opts...)...)
}

func (d *deps) Close() {
	d.principles.StopWatching()
	if err := d.telemetry.Shutdown(context.Background()); err != nil {
		logger.Warn("shut down telemetry failed", zap.Error(err))
	}
	if err := d.memory.Close(); err != nil {
		logger.Warn("close memory store failed", zap.Error(err))
	}
}

// openGovernance builds the process-wide investigation service over the
// base directory.
func openGovernance(opts ...governance.ServiceOption) (*governance.Service, error) {
	store := storage.NewFileStorage(storage.WithBaseDir(cfg.BaseDir))
	if err := store.Init(); err != nil {
		return nil, err
	}
	return governance.NewService(cfg.Governance, store, append([]governance.ServiceOption{governance.WithLogger(logger)}, opts...)...)
}

// decodeInput reads one JSON document from r into v. Empty input leaves v
// at its zero value.
func decodeInput(r io.Reader, v any) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return data, nil
}

// agentEnvelope carries the optional agent selector of a hook event.
type agentEnvelope struct {
	AgentID string `json:"agent_id,omitempty"`
}

// resolveAgentID picks the event's agent, then the --agent flag.
func resolveAgentID(fromEvent string) string {
	if fromEvent != "" {
		return fromEvent
	}
	if agentID != "" {
		return agentID
	}
	return monitor.DefaultAgentID
}
