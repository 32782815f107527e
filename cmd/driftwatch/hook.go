package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/monitor"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run one hook invocation",
	Long: `Handle a single host hook event read as JSON from stdin. State is carried
between invocations in the agent's data directory, so each call may run in
a fresh process.

Events:
  turn-start   {"session_id", "user_message", "workspace"}
  turn-end     {"session_id", "user_message", "response", "context_quality"}
  tool-call    {"session_id", "tool", "output", "params"}
  pre-compact  {"session_id"}

Every event may carry "agent_id". In table mode the text to surface is
printed as-is; with -o json the full result is printed.

Examples:
  echo '{"user_message":"fix the cache"}' | driftwatch hook turn-start
  driftwatch hook turn-end -o json < turn.json`,
}

func init() {
	for _, name := range []string{monitor.HookTurnStart, monitor.HookTurnEnd, monitor.HookToolCall, monitor.HookPreCompaction} {
		hookCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Handle a " + name + " event",
			Args:  cobra.NoArgs,
			RunE:  runHook,
		})
	}
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	var env agentEnvelope
	raw, err := decodeInput(cmd.InOrStdin(), &env)
	if err != nil {
		return err
	}

	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(env.AgentID))
	if err != nil {
		return err
	}
	defer agent.Close()

	result, text, err := dispatchHook(cmd.Context(), agent, cmd.Name(), raw)
	if err != nil {
		return err
	}
	return writeHookResult(cmd.OutOrStdout(), format, result, text)
}

// dispatchHook decodes raw as the input of hook and runs it. It returns the
// structured result and the text a host should surface.
func dispatchHook(ctx context.Context, agent *monitor.Agent, hook string, raw []byte) (any, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch hook {
	case monitor.HookTurnStart:
		var in monitor.TurnStartInput
		if err := unmarshalPayload(raw, &in); err != nil {
			return nil, "", err
		}
		out := agent.OnTurnStart(ctx, in)
		return out, out.Context, nil
	case monitor.HookTurnEnd:
		var in monitor.TurnEndInput
		if err := unmarshalPayload(raw, &in); err != nil {
			return nil, "", err
		}
		out := agent.OnTurnEnd(ctx, in)
		return out, "", nil
	case monitor.HookToolCall:
		var in monitor.ToolCallInput
		if err := unmarshalPayload(raw, &in); err != nil {
			return nil, "", err
		}
		warning := agent.OnToolCall(ctx, in)
		return map[string]string{"warning": warning}, warning, nil
	case monitor.HookPreCompaction:
		summary := agent.OnPreCompaction(ctx)
		return map[string]string{"summary": summary}, summary, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", errUnknownHook, hook)
	}
}

func unmarshalPayload(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode hook payload: %w", err)
	}
	return nil
}

func writeHookResult(w io.Writer, format formatter.Format, result any, text string) error {
	if format == formatter.FormatJSON {
		return formatter.JSON(w, result)
	}
	if text == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
