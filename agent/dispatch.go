package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/tool"
)

// runState is per-run mutable state shared by the concurrent tool executions
// of a round.
type runState struct {
	mu        sync.Mutex
	citations *core.CitationSet
}

func newRunState() *runState {
	return &runState{citations: core.NewCitationSet()}
}

func (s *runState) mergeCitations(list []core.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.citations.Merge(list...)
}

// executeRound turns every tool call of one round into a tool-result message,
// in call order. Complete calls run concurrently; a failing or panicking
// sibling is captured into its own result and never aborts the others.
// Incomplete fragments become error results the model can correct.
func (a *Agent) executeRound(ctx context.Context, outcome *roundOutcome, state *runState) []core.Message {
	results := make([]core.Message, len(outcome.calls), len(outcome.calls)+len(outcome.incomplete))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range outcome.calls {
		i, call := i, call
		g.Go(func() error {
			content := a.invokeCall(gctx, call, state)
			results[i] = core.NewToolMessage(call.ID, content)
			return nil
		})
	}
	_ = g.Wait()

	for _, frag := range outcome.incomplete {
		call := frag.ToolCall()
		a.logger.Warn("agent.tool_call.incomplete", "agent", a.name, "tool", call.Function.Name, "call_id", call.ID)
		results = append(results, core.NewToolMessage(call.ID,
			fmt.Sprintf("Error: tool call %q has incomplete or invalid arguments", call.Function.Name)))
	}
	return results
}

// invokeCall executes one materialized tool call and normalizes the outcome
// to a tool-result string. Errors and panics are folded into "Error: …" text.
func (a *Agent) invokeCall(ctx context.Context, call core.ToolCall, state *runState) (content string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent.tool.panic", "agent", a.name, "tool", call.Function.Name, "panic", r)
			content = fmt.Sprintf("Error: tool %q panicked: %v", call.Function.Name, r)
		}
	}()

	if call.Function.Name == tool.CitationName {
		return a.invokeCitation(call, state)
	}

	t, ok := a.tools.Get(call.Function.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Function.Name)
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments for tool %q: %v", call.Function.Name, err)
		}
	}

	toolCtx := tool.NewContext(ctx, call.ID, a.logger)
	result, err := t.Call(toolCtx, args)
	if err != nil {
		a.logger.Warn("agent.tool.failed", "agent", a.name, "tool", call.Function.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return normalizeResult(result)
}

// invokeCitation handles the reserved citation tool inline: the text becomes
// the tool result, the sources merge into the run's citation list.
func (a *Agent) invokeCitation(call core.ToolCall, state *runState) string {
	var args tool.CitationArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("Error: invalid citation arguments: %v", err)
	}
	state.mergeCitations(args.Sources)
	return args.Text
}

// normalizeResult renders a tool's return value as tool-message content:
// strings pass through, protocol content arrays are joined, anything else is
// serialized as JSON.
func normalizeResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case []map[string]any:
		joined := ""
		for _, block := range v {
			if text, ok := block["text"].(string); ok {
				joined += text
			}
		}
		if joined != "" {
			return joined
		}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(raw)
}
