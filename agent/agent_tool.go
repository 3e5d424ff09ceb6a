package agent

import (
	"fmt"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/tool"
)

// Runner is the capability interface marking a tool as backed by an agent.
// Hierarchy discovery uses it instead of probing concrete types, so any tool
// wrapping an agent participates in event forwarding.
type Runner interface {
	Agent() *Agent
}

// TaskArgs is the invocation schema every agent exposes when used as a tool.
type TaskArgs struct {
	Task    string `json:"task" jsonschema_description:"What the agent should do"`
	Context string `json:"context,omitempty" jsonschema_description:"Background information for the task"`
}

// AgentTool exposes an agent as a callable tool. Each invocation builds a
// fresh conversation and runs the wrapped agent's dispatch loop with its own
// system prompt, so concurrent calls never share mutable state.
type AgentTool struct {
	agent *Agent
}

// NewAgentTool wraps an agent for registration in a tool registry.
func NewAgentTool(a *Agent) *AgentTool {
	return &AgentTool{agent: a}
}

// Agent returns the wrapped agent, satisfying Runner.
func (t *AgentTool) Agent() *Agent { return t.agent }

func (t *AgentTool) Name() string { return t.agent.Name() }

func (t *AgentTool) Description() string {
	if d := t.agent.Description(); d != "" {
		return d
	}
	return fmt.Sprintf("Delegate a task to the %s agent.", t.agent.Name())
}

func (t *AgentTool) Parameters() map[string]any {
	return tool.SchemaFor(TaskArgs{})
}

// Call runs the wrapped agent to completion on the given task. Failures are
// returned as a structured result with status "error" rather than an error,
// so a failing sub-agent never aborts the parent's round.
func (t *AgentTool) Call(toolCtx *tool.Context, args map[string]any) (any, error) {
	task, _ := args["task"].(string)
	if task == "" {
		return nil, tool.NewToolError(t.Name(), "argument \"task\" is required", tool.CodeValidation)
	}

	content := task
	if background, _ := args["context"].(string); background != "" {
		content = fmt.Sprintf("Context: %s\n\nTask: %s", background, task)
	}

	conv := core.Conversation{core.NewUserMessage(content)}
	result, err := t.agent.Run(toolCtx.Context(), conv)
	if err != nil {
		return map[string]any{
			"content": fmt.Sprintf("Error: %v", err),
			"agent":   t.agent.Name(),
			"status":  string(core.StatusError),
		}, nil
	}
	return map[string]any{
		"content": result.Text,
		"agent":   t.agent.Name(),
		"status":  string(result.Status),
	}, nil
}
