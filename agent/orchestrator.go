package agent

import (
	"context"
	"sync"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/model"
	"github.com/agentrelay/agentrelay/tool"
)

// ToolUsagePrompt is appended to every orchestrator's system prompt. An
// orchestrator must delegate to its tools rather than answer from memory
// when a registered tool fits the request.
const ToolUsagePrompt = "You coordinate specialized tools and agents. " +
	"When a registered tool or agent can handle part of the request, you MUST call it " +
	"instead of answering from your own knowledge. Combine the results into one coherent answer."

// lifecycleEvents are the event types an orchestrator forwards from its
// sub-agents.
var lifecycleEvents = []core.EventType{
	core.EventAgentStart,
	core.EventAgentToken,
	core.EventAgentComplete,
	core.EventAgentError,
}

// Orchestrator is an agent that coordinates a set of sub-agents exposed as
// tools. Sub-agents are added during assembly; the first Run freezes the
// combined tool set.
type Orchestrator struct {
	*Agent
	registry *tool.Registry
	freeze   sync.Once
}

// NewOrchestrator creates an orchestrator. Its tool set starts empty; add
// tools with RegisterTool and agents with AddSubAgent before the first Run.
func NewOrchestrator(name string, llm model.Model, optFns ...func(o *Options)) *Orchestrator {
	o := &Orchestrator{
		Agent:    New(name, llm, nil, optFns...),
		registry: tool.NewRegistry(),
	}
	o.Agent.systemPrompt = o.Agent.systemPrompt + "\n\n" + ToolUsagePrompt
	return o
}

// RegisterTool adds a plain tool to the orchestrator. Fails after the first
// Run has frozen the tool set.
func (o *Orchestrator) RegisterTool(t tool.Tool) error {
	return o.registry.Register(t)
}

// AddSubAgent registers an agent as a tool and wires its lifecycle events to
// this orchestrator's sub_agent_event channel. The wiring lives as long as
// both agents do.
func (o *Orchestrator) AddSubAgent(sub *Agent) error {
	if err := o.registry.Register(NewAgentTool(sub)); err != nil {
		return err
	}
	path := core.ChildPath(o.Name(), sub.Name())
	for _, eventType := range lifecycleEvents {
		sub.Events().Subscribe(eventType, forwardTo(o.Events(), eventType, sub.Name(), path))
	}
	return nil
}

// Run freezes the tool set on first use, then drives the agent dispatch loop.
func (o *Orchestrator) Run(ctx context.Context, conv core.Conversation, optFns ...func(ro *RunOptions)) (*core.AgentResult, error) {
	o.ensureFrozen()
	return o.Agent.Run(ctx, conv, optFns...)
}

func (o *Orchestrator) ensureFrozen() {
	o.freeze.Do(func() {
		o.Agent.tools = o.registry.Snapshot()
	})
}

// forwardTo builds a forwarding handler with the event type, agent name and
// path bound by value. Binding per call keeps every forwarder reporting its
// own path even when wired from a loop.
func forwardTo(bus *core.Bus, eventType core.EventType, agentName, path string) core.Handler {
	return func(e core.Event) {
		data := map[string]any{"event": string(eventType)}
		for k, v := range e.Data {
			data[k] = v
		}
		forwarded := core.NewEvent(core.EventSubAgent, agentName)
		forwarded.Path = path
		forwarded.Level = core.PathLevel(path)
		forwarded.Data = data
		bus.Publish(forwarded)
	}
}
