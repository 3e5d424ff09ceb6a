package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle notification category.
type EventType string

const (
	// EventAgentStart is published when an agent begins a run.
	EventAgentStart EventType = "agent_start"
	// EventAgentToken is published for each content token forwarded to the caller.
	EventAgentToken EventType = "agent_token"
	// EventAgentComplete is published when a run terminates normally.
	EventAgentComplete EventType = "agent_complete"
	// EventAgentError is published when a run terminates with an error.
	EventAgentError EventType = "agent_error"
	// EventSubAgent wraps an event forwarded upward from a nested agent.
	EventSubAgent EventType = "sub_agent_event"
)

// Event is the unit of communication on the lifecycle bus. Path and Level are
// set by orchestrators when forwarding: Path is the dotted root-to-leaf chain
// of agent names and Level its dot count. After emission an Event should be
// treated as immutable.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Agent     string         `json:"agent"`
	Path      string         `json:"path,omitempty"`
	Level     int            `json:"level"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates an event authored by the named agent.
func NewEvent(eventType EventType, agent string) Event {
	return Event{
		ID:        NewID(),
		Type:      eventType,
		Agent:     agent,
		Timestamp: time.Now().UTC(),
	}
}

// NewTokenEvent creates an agent_token event carrying one content delta.
func NewTokenEvent(agent, token string) Event {
	e := NewEvent(EventAgentToken, agent)
	e.Data = map[string]any{"token": token}
	return e
}

// NewID generates a new unique identifier for events and tool calls.
func NewID() string { return uuid.NewString() }

// PathLevel returns the hierarchy level encoded by a dotted path: the number
// of dots. The empty path and a bare name are both level 0.
func PathLevel(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".")
}

// ChildPath extends a parent path by one hop. An empty parent yields the
// child name unchanged so roots do not produce a leading dot.
func ChildPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
