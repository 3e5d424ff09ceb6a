// Package anthropic provides a model wrapper for the Anthropic Claude API.
// Streaming tool-use input arrives as partial JSON deltas which are relayed
// as tool-call fragments; assembly happens in the dispatch loop.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/model"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := extractSystemPrompt(req.Messages); system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

// mapStopReason converts Anthropic stop reasons to wire finish reasons.
func mapStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return model.FinishToolCalls
	case "max_tokens":
		return model.FinishLength
	case "":
		return ""
	default:
		return model.FinishStop
	}
}

// handleStreaming relays message stream events as normalized deltas. Tool-use
// blocks are numbered in order of appearance so their partial JSON deltas
// share a stable fragment index.
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.StreamEvent,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)

	blockToCall := map[int64]int{}
	nextCall := 0
	finish := ""

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type != "tool_use" {
				continue
			}
			idx := nextCall
			nextCall++
			blockToCall[ev.Index] = idx
			out <- model.StreamEvent{ToolCallDeltas: []core.ToolCallDelta{{
				Index: idx,
				ID:    ev.ContentBlock.ID,
				Type:  "function",
				Name:  ev.ContentBlock.Name,
			}}}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					out <- model.StreamEvent{Content: delta.Text}
				}
			case anthropic.InputJSONDelta:
				idx, ok := blockToCall[ev.Index]
				if !ok || delta.PartialJSON == "" {
					continue
				}
				out <- model.StreamEvent{ToolCallDeltas: []core.ToolCallDelta{{
					Index:     idx,
					Arguments: delta.PartialJSON,
				}}}
			}
		case anthropic.MessageDeltaEvent:
			finish = mapStopReason(string(ev.Delta.StopReason))
		case anthropic.MessageStopEvent:
			if finish == "" {
				finish = model.FinishStop
			}
			out <- model.StreamEvent{FinishReason: finish}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
	}
}

// handleNonStreaming adapts a complete message into one terminal event.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.StreamEvent,
	errCh chan<- error,
) {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("anthropic api error: %w", err)
		return
	}

	ev := model.StreamEvent{FinishReason: mapStopReason(string(resp.StopReason))}
	callIdx := 0
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			ev.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(raw)
				}
			}
			ev.ToolCallDeltas = append(ev.ToolCallDeltas, core.ToolCallDelta{
				Index:     callIdx,
				ID:        toolBlock.ID,
				Type:      "function",
				Name:      toolBlock.Name,
				Arguments: args,
			})
			callIdx++
		}
	}
	out <- ev
}

// buildMessages converts wire-format messages to Anthropic message params.
// System messages are handled separately; tool results become tool_result
// blocks inside user messages per the Messages API contract.
func buildMessages(conv core.Conversation) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range conv {
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	return messages
}

// extractSystemPrompt returns the first system message's content.
func extractSystemPrompt(conv core.Conversation) string {
	for _, msg := range conv {
		if msg.Role == core.RoleSystem {
			return msg.Content
		}
	}
	return ""
}

// buildTools converts normalized tool definitions into Anthropic tool params.
func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := def.Function.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := def.Function.Parameters["required"].([]string); ok {
			schema.Required = req
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Function.Name,
				Description: anthropic.String(def.Function.Description),
				InputSchema: schema,
			},
		})
	}
	return tools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
