package core

import "strings"

// Message roles as they appear on the chat completion wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FunctionCall carries the callable portion of a ToolCall: the target tool
// name and its raw JSON argument string exactly as produced by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a fully materialized tool invocation request emitted by the
// model as part of an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is one element of a Conversation in chat completion wire format.
// Content may be empty for assistant messages that only carry tool calls.
// ToolCallID links a tool-role message back to the call it answers.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role text message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolCallMessage creates the assistant message that pairs with a batch of
// tool results. It carries the materialized calls and no content.
func NewToolCallMessage(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// NewToolMessage creates a tool-role result message answering callID.
func NewToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// Conversation is an ordered, append-only message sequence. Mutating helpers
// return new slices or append in place; callers must never reorder or remove
// entries once added.
type Conversation []Message

// Append adds messages to the end of the conversation.
func (c Conversation) Append(msgs ...Message) Conversation {
	return append(c, msgs...)
}

// Clone returns a shallow copy so a callee can extend the conversation
// without mutating the caller's backing array.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// WithSystemPrompt returns a copy of the conversation whose system message is
// prompt. An existing system message is replaced in place; when none exists
// the prompt is prepended. All non-system messages are preserved in order.
// The receiver is never mutated, so concurrent callers may apply different
// prompts to the same underlying conversation.
func (c Conversation) WithSystemPrompt(prompt string) Conversation {
	out := c.Clone()
	for i := range out {
		if out[i].Role == RoleSystem {
			out[i] = NewSystemMessage(prompt)
			return out
		}
	}
	return append(Conversation{NewSystemMessage(prompt)}, out...)
}

// Text concatenates the content of all assistant messages. Used when a
// caller needs the conversation's produced output as one string.
func (c Conversation) Text() string {
	var b strings.Builder
	for _, m := range c {
		if m.Role == RoleAssistant && m.Content != "" {
			b.WriteString(m.Content)
		}
	}
	return b.String()
}
