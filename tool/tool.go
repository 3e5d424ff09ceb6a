// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities with schema described arguments and
// consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/logging"
)

// Tool is a capability an agent can invoke through function calling.
//
// Implementations should provide descriptive names, a JSON schema for their
// parameters and be safe for concurrent use: the dispatch loop fans tool
// calls out to goroutines.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description provided to the model
	// so it can decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// Context carries per-invocation state into a tool call.
type Context struct {
	ctx    context.Context
	callID string
	logger logging.Logger
}

// NewContext builds an invocation context for one tool call.
func NewContext(ctx context.Context, callID string, logger logging.Logger) *Context {
	return &Context{ctx: ctx, callID: callID, logger: logging.OrNoOp(logger)}
}

// Context returns the request context; tools doing I/O must honor its
// cancellation.
func (c *Context) Context() context.Context { return c.ctx }

// CallID returns the model-assigned function call identifier, correlating the
// request with the tool result message.
func (c *Context) CallID() string { return c.callID }

// Logger returns the invocation logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// Error codes used by ToolError for categorization.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// CitationName is the reserved tool name whose calls bypass generic
// execution: the dispatch loop interprets its arguments directly and merges
// the sources into the run's citation list.
const CitationName = "citation"

// CitationArgs is the argument shape of the reserved citation tool.
type CitationArgs struct {
	Text    string          `json:"text" jsonschema:"required" jsonschema_description:"Statement the sources support"`
	Sources []core.Citation `json:"sources" jsonschema_description:"Sources backing the statement"`
}

// NewCitationTool returns the descriptor advertised to models for the
// reserved citation tool. Its Call is never reached during dispatch; it
// exists so the tool appears in registries and definitions like any other.
func NewCitationTool() Tool {
	return NewFunctionToolFromStruct(
		CitationName,
		"Record a cited statement together with its sources.",
		CitationArgs{},
		func(toolCtx *Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	)
}
