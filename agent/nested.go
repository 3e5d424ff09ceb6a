package agent

import (
	"context"
	"sync"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/model"
	"github.com/agentrelay/agentrelay/tool"
)

// HierarchyEntry records one discovered agent and its dotted path from the
// root, computed once before the first request.
type HierarchyEntry struct {
	Agent *Agent
	Path  string
}

// NestedOrchestrator coordinates multi-level agent hierarchies. At freeze
// time it walks the tool registry recursively, recording every agent-backed
// tool and its dotted path. Each Run then wires event forwarders for the
// whole tree and tears them down when the run ends, so a long-lived
// orchestrator serving concurrent requests never leaks wiring between runs.
type NestedOrchestrator struct {
	*Orchestrator
	discover sync.Once
	entries  []HierarchyEntry
}

// NewNestedOrchestrator creates an orchestrator that forwards events from
// arbitrarily deep sub-agent trees.
func NewNestedOrchestrator(name string, llm model.Model, optFns ...func(o *Options)) *NestedOrchestrator {
	return &NestedOrchestrator{Orchestrator: NewOrchestrator(name, llm, optFns...)}
}

// AddSubAgent registers an agent as a tool. Unlike the flat orchestrator it
// attaches no wiring here; forwarding for the whole hierarchy is wired per
// run after discovery.
func (n *NestedOrchestrator) AddSubAgent(sub *Agent) error {
	return n.registry.Register(NewAgentTool(sub))
}

// Run discovers the hierarchy on first use, wires forwarding for every
// discovered agent, runs the dispatch loop and removes the wiring again.
func (n *NestedOrchestrator) Run(ctx context.Context, conv core.Conversation, optFns ...func(ro *RunOptions)) (*core.AgentResult, error) {
	n.ensureDiscovered()

	type wired struct {
		bus *core.Bus
		sub core.Subscription
	}
	var wiring []wired
	for _, entry := range n.entries {
		for _, eventType := range lifecycleEvents {
			handler := forwardTo(n.Events(), eventType, entry.Agent.Name(), entry.Path)
			wiring = append(wiring, wired{
				bus: entry.Agent.Events(),
				sub: entry.Agent.Events().Subscribe(eventType, handler),
			})
		}
	}
	defer func() {
		for _, w := range wiring {
			w.bus.Unsubscribe(w.sub)
		}
	}()

	return n.Agent.Run(ctx, conv, optFns...)
}

// Entries returns the discovered agents and paths, freezing the hierarchy if
// it has not been walked yet.
func (n *NestedOrchestrator) Entries() []HierarchyEntry {
	n.ensureDiscovered()
	out := make([]HierarchyEntry, len(n.entries))
	copy(out, n.entries)
	return out
}

// Paths returns the discovered dotted paths in discovery order.
func (n *NestedOrchestrator) Paths() []string {
	n.ensureDiscovered()
	paths := make([]string, len(n.entries))
	for i, e := range n.entries {
		paths[i] = e.Path
	}
	return paths
}

func (n *NestedOrchestrator) ensureDiscovered() {
	n.ensureFrozen()
	n.discover.Do(func() {
		visited := map[*Agent]bool{n.Agent: true}
		n.entries = walkHierarchy(n.Name(), n.Tools(), visited)
	})
}

// walkHierarchy performs the discovery pass: every registry entry exposing
// the Runner capability is recorded with path parent.<toolName>, then its own
// registry is walked to extend the path. The visited set guards against
// agents registered in more than one place.
func walkHierarchy(parent string, snap *tool.Snapshot, visited map[*Agent]bool) []HierarchyEntry {
	var entries []HierarchyEntry
	for _, t := range snap.Tools() {
		runner, ok := t.(Runner)
		if !ok {
			continue
		}
		child := runner.Agent()
		if visited[child] {
			continue
		}
		visited[child] = true

		path := core.ChildPath(parent, t.Name())
		entries = append(entries, HierarchyEntry{Agent: child, Path: path})
		entries = append(entries, walkHierarchy(path, child.Tools(), visited)...)
	}
	return entries
}
