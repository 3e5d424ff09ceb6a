package model

import (
	"context"

	"github.com/agentrelay/agentrelay/core"
)

// Finish reasons observed on the chat completion wire.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// FunctionDefinition describes one callable tool to the model.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition is the wire envelope around a FunctionDefinition.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// Request is a normalized chat completion request. Tools must be omitted when
// empty; the dispatch loop sets ToolChoice to "auto" only alongside Tools.
type Request struct {
	Messages    core.Conversation `json:"messages"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int64             `json:"max_tokens"`
	Stream      bool              `json:"stream"`
}

// StreamEvent is one decoded delta from a streaming response. Exactly one of
// Content / ToolCallDeltas is populated per event; FinishReason arrives on
// the terminal event of a round (possibly alongside neither).
type StreamEvent struct {
	Content        string
	ToolCallDeltas []core.ToolCallDelta
	FinishReason   string
}

// Model is the minimal inference backend contract. Generate issues one chat
// request and yields decoded delta events until the stream ends; a terminal
// transport or decode failure is reported on the error channel. Both channels
// are closed when the call completes. Implementations must honor ctx
// cancellation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error)

	// Info returns metadata describing the backend.
	Info() Info
}

// Info carries model metadata for logging and capability checks.
type Info struct {
	Name          string
	Provider      string
	SupportsTools bool
}
