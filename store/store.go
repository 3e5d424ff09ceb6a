// Package store defines the persistence boundary for finished runs. The core
// emits a completed conversation and its agent results; durable storage lives
// behind the Recorder interface so a relational or document backend can be
// swapped in without touching the dispatch code.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentrelay/agentrelay/core"
)

// Run is one finished top-level request: the full conversation and the
// results every involved agent produced.
type Run struct {
	ID           string             `json:"id"`
	Conversation core.Conversation  `json:"conversation"`
	Results      []core.AgentResult `json:"results"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Recorder persists finished runs.
type Recorder interface {
	// Record stores one finished run.
	Record(ctx context.Context, run Run) error
}

// InMemoryRecorder is a volatile Recorder storing runs in a process-local
// map. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Stored runs are cloned on read to prevent external
// mutation of internal state.
type InMemoryRecorder struct {
	mu    sync.RWMutex
	runs  map[string]Run
	order []string
}

// NewInMemoryRecorder constructs an empty in-memory recorder.
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{runs: make(map[string]Run)}
}

// Record stores the run, assigning an ID and timestamp when missing.
func (r *InMemoryRecorder) Record(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = core.NewID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; !exists {
		r.order = append(r.order, run.ID)
	}
	run.Conversation = run.Conversation.Clone()
	r.runs[run.ID] = run
	return nil
}

// Get returns a stored run by ID.
func (r *InMemoryRecorder) Get(id string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("run %q not found", id)
	}
	run.Conversation = run.Conversation.Clone()
	return run, nil
}

// List returns all stored runs in insertion order.
func (r *InMemoryRecorder) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Run, 0, len(r.order))
	for _, id := range r.order {
		run := r.runs[id]
		run.Conversation = run.Conversation.Clone()
		out = append(out, run)
	}
	return out
}

// Len returns the number of stored runs.
func (r *InMemoryRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// NoOpRecorder discards every run. Used when persistence is disabled.
type NoOpRecorder struct{}

// Record implements Recorder by doing nothing.
func (NoOpRecorder) Record(ctx context.Context, run Run) error { return nil }
