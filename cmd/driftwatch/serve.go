package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/governance"
	"github.com/boshu2/driftwatch/internal/monitor"
	"github.com/boshu2/driftwatch/internal/telemetry"
)

// Events served by the process rather than an agent.
const (
	// hookInvestigate asks the shared governance service for an investigation.
	hookInvestigate = "investigate"

	// hookMetrics returns the telemetry collected since the process started.
	hookMetrics = "metrics"
)

// maxEventSize bounds one JSONL event line.
const maxEventSize = 4 * 1024 * 1024

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process hook events from stdin until EOF",
	Long: `Run a long-lived event loop. Each stdin line is a JSON event:

  {"id": "1", "hook": "turn-end", "agent_id": "main", "payload": {...}}

hook is one of turn-start, turn-end, tool-call, pre-compact, investigate
(payload {"topic": "..."}) or metrics (no payload; returns the entropy,
loop, injection and feedback series recorded so far). Each event gets one JSON reply line on stdout
with the same id. Agents are created on first use and fully isolated; the
investigation budget is shared by all of them. State is saved on EOF or
SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Watch vector and principles files for changes")
	rootCmd.AddCommand(serveCmd)
}

// serveEvent is one input line.
type serveEvent struct {
	ID      string          `json:"id,omitempty"`
	Hook    string          `json:"hook"`
	AgentID string          `json:"agent_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// serveReply is one output line.
type serveReply struct {
	ID      string `json:"id,omitempty"`
	Hook    string `json:"hook,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	Text    string `json:"text,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// notice is an unsolicited output line announcing queued investigations.
type notice struct {
	Notice string   `json:"notice"`
	Topics []string `json:"topics"`
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	enc := formatter.NewLineEncoder(cmd.OutOrStdout())
	svc, err := openGovernance(governance.WithNotifier(func(batch []governance.Notification) {
		n := notice{Notice: "investigations_queued"}
		for _, item := range batch {
			n.Topics = append(n.Topics, item.Topic)
		}
		if err := enc.Encode(n); err != nil {
			logger.Warn("write notice failed", zap.Error(err))
		}
	}))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if serveWatch {
		d.watch(ctx)
	}
	registry := monitor.NewRegistry(func(id string) (*monitor.Agent, error) {
		a, err := d.agent(id)
		if err != nil {
			return nil, err
		}
		if serveWatch {
			a.Watch(ctx)
		}
		logger.Info("agent started", zap.String("agent", id), zap.String("dir", a.Dir()))
		return a, nil
	})
	defer registry.Close()

	srv := &server{registry: registry, svc: svc, telemetry: d.telemetry, enc: enc}
	return srv.loop(ctx, cmd.InOrStdin())
}

// server dispatches serve events to agents and the shared services.
type server struct {
	registry  *monitor.Registry
	svc       *governance.Service
	telemetry *telemetry.Pipeline
	enc       *formatter.LineEncoder
}

// loop handles events until r is exhausted or ctx is done.
func (s *server) loop(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("serve interrupted; saving state")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read events: %w", err)
					}
				default:
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			reply := s.handle(ctx, line)
			if err := s.enc.Encode(reply); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
	}
}

func (s *server) handle(ctx context.Context, line []byte) serveReply {
	var ev serveEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return serveReply{Error: fmt.Sprintf("decode event: %v", err)}
	}
	reply := serveReply{ID: ev.ID, Hook: ev.Hook, AgentID: resolveAgentID(ev.AgentID)}

	switch ev.Hook {
	case hookMetrics:
		points, err := s.telemetry.Snapshot(ctx)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		reply.Result = points
		return reply
	case hookInvestigate:
		var p struct {
			Topic string `json:"topic"`
		}
		if err := unmarshalPayload(ev.Payload, &p); err != nil {
			reply.Error = err.Error()
			return reply
		}
		decision, err := s.svc.Request(ctx, p.Topic)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		reply.Result = decision
		return reply
	}

	agent, err := s.registry.Get(reply.AgentID)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	result, text, err := dispatchHook(ctx, agent, ev.Hook, ev.Payload)
	if err != nil {
		if !errors.Is(err, errUnknownHook) {
			logger.Warn("hook failed", zap.String("hook", ev.Hook), zap.Error(err))
		}
		reply.Error = err.Error()
		return reply
	}
	reply.Result = result
	reply.Text = text
	return reply
}
