package tool

import (
	"fmt"
	"sync"

	"github.com/agentrelay/agentrelay/model"
)

// Registry holds the tools available to agents. Registration happens during
// assembly; the first Snapshot freezes the registry so dispatch loops see a
// stable tool set for the lifetime of a run.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. It fails on duplicate names and after the registry
// has been frozen by a Snapshot.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", t.Name())
	}
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// MustRegister is Register that panics on error, for assembly-time wiring.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Snapshot freezes the registry and returns an immutable view of its tools
// in registration order.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	byName := make(map[string]Tool, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		tools = append(tools, t)
		byName[name] = t
	}
	return &Snapshot{tools: tools, byName: byName}
}

// Snapshot is an immutable view of a registry. It is safe for concurrent use.
type Snapshot struct {
	tools  []Tool
	byName map[string]Tool
}

// EmptySnapshot returns a snapshot with no tools.
func EmptySnapshot() *Snapshot {
	return &Snapshot{byName: map[string]Tool{}}
}

// SnapshotOf builds a snapshot directly from a tool list, failing on
// duplicate names.
func SnapshotOf(tools ...Tool) (*Snapshot, error) {
	r := NewRegistry()
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r.Snapshot(), nil
}

// Get looks a tool up by name.
func (s *Snapshot) Get(name string) (Tool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Len returns the number of tools in the snapshot.
func (s *Snapshot) Len() int { return len(s.tools) }

// Tools returns the tools in registration order.
func (s *Snapshot) Tools() []Tool {
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Filter returns a new snapshot containing only the named tools, in the
// order given. Unknown names are skipped.
func (s *Snapshot) Filter(names ...string) *Snapshot {
	tools := make([]Tool, 0, len(names))
	byName := make(map[string]Tool, len(names))
	for _, name := range names {
		t, ok := s.byName[name]
		if !ok {
			continue
		}
		if _, dup := byName[name]; dup {
			continue
		}
		tools = append(tools, t)
		byName[name] = t
	}
	return &Snapshot{tools: tools, byName: byName}
}

// Definitions converts the snapshot into wire tool definitions for a model
// request.
func (s *Snapshot) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
