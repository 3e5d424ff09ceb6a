// Package agent implements the dispatch loop that drives streaming model
// rounds, reconstructs tool calls from deltas, executes tools concurrently
// and composes agents into orchestrated hierarchies.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/harmony"
	"github.com/agentrelay/agentrelay/logging"
	"github.com/agentrelay/agentrelay/model"
	"github.com/agentrelay/agentrelay/tool"
)

// ReasoningEffort selects how much deliberation the agent's prompt asks of
// the model.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// DefaultMaxRounds bounds the dispatch loop's tool-calling iterations.
const DefaultMaxRounds = 3

// Options configure an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	Description     string
	SystemPrompt    string
	ReasoningEffort ReasoningEffort
	// Tools names the registry subset available to this agent. Nil means the
	// whole registry.
	Tools       []string
	MaxRounds   int
	Temperature float64
	MaxTokens   int64
	Logger      logging.Logger
}

// Agent is a named dispatch loop with its own prompt, reasoning level and
// tool snapshot. An Agent holds no per-request state and is safe for
// concurrent runs.
type Agent struct {
	name         string
	description  string
	systemPrompt string
	effort       ReasoningEffort
	maxRounds    int
	temperature  float64
	maxTokens    int64
	llm          model.Model
	tools        *tool.Snapshot
	bus          *core.Bus
	logger       logging.Logger
}

// New creates an agent bound to a model and a registry snapshot. The snapshot
// is filtered to the configured subset at construction, not per request.
func New(name string, llm model.Model, registry *tool.Snapshot, optFns ...func(o *Options)) *Agent {
	opts := Options{
		SystemPrompt:    fmt.Sprintf("You are %s, a helpful assistant.", name),
		ReasoningEffort: EffortMedium,
		MaxRounds:       DefaultMaxRounds,
		Temperature:     0.7,
		MaxTokens:       2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}

	if registry == nil {
		registry = tool.EmptySnapshot()
	}
	if opts.Tools != nil {
		registry = registry.Filter(opts.Tools...)
	}

	return &Agent{
		name:         name,
		description:  opts.Description,
		systemPrompt: opts.SystemPrompt,
		effort:       opts.ReasoningEffort,
		maxRounds:    opts.MaxRounds,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		llm:          llm,
		tools:        registry,
		bus:          core.NewBus(),
		logger:       logging.OrNoOp(opts.Logger),
	}
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description, used when the agent is
// exposed as a tool.
func (a *Agent) Description() string { return a.description }

// Events returns the agent's lifecycle event bus.
func (a *Agent) Events() *core.Bus { return a.bus }

// Tools returns the agent's frozen tool snapshot.
func (a *Agent) Tools() *tool.Snapshot { return a.tools }

// RunOptions carry per-call parameters into one dispatch run. Per-call
// values keep concurrent runs of the same agent independent.
type RunOptions struct {
	// SystemPrompt replaces the agent's configured prompt for this run only.
	SystemPrompt string
	// OnToken receives live content as it streams from the final channel.
	OnToken func(token string)
}

// WithSystemPrompt overrides the system prompt for one run.
func WithSystemPrompt(prompt string) func(o *RunOptions) {
	return func(o *RunOptions) { o.SystemPrompt = prompt }
}

// WithOnToken registers a live token callback for one run.
func WithOnToken(fn func(token string)) func(o *RunOptions) {
	return func(o *RunOptions) { o.OnToken = fn }
}

// Run drives the dispatch loop over a conversation until the model stops
// requesting tools or the round cap is reached. The conversation is copied;
// the caller's slice is never mutated.
//
// The returned result is always non-nil. A non-nil error indicates a
// transport or decode failure on the model stream; tool failures never
// surface here, they become tool-result messages the model can react to.
func (a *Agent) Run(ctx context.Context, conv core.Conversation, optFns ...func(o *RunOptions)) (*core.AgentResult, error) {
	var opts RunOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	prompt := a.systemPrompt
	if opts.SystemPrompt != "" {
		prompt = opts.SystemPrompt
	}
	conv = conv.WithSystemPrompt(applyEffort(prompt, a.effort))

	a.bus.Publish(core.NewEvent(core.EventAgentStart, a.name))

	demux := harmony.NewDemux()
	state := newRunState()
	rounds := 0

	for rounds < a.maxRounds {
		req := model.Request{
			Messages:    conv,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
			Stream:      true,
		}
		if a.tools.Len() > 0 {
			req.Tools = a.tools.Definitions()
			req.ToolChoice = "auto"
		}

		outcome, err := a.streamRound(ctx, req, demux, opts.OnToken)
		if err != nil {
			errEvent := core.NewEvent(core.EventAgentError, a.name)
			errEvent.Data = map[string]any{"error": err.Error()}
			a.bus.Publish(errEvent)
			return core.ErrorResult(a.name, err), err
		}
		rounds++

		if len(outcome.calls) == 0 && len(outcome.incomplete) == 0 {
			break
		}
		if rounds >= a.maxRounds {
			// No further round will consume the results, so skip execution.
			a.logger.Warn("agent.rounds.exhausted", "agent", a.name, "unconsumed_calls", len(outcome.calls))
			break
		}

		conv = conv.Append(assistantCallMessage(outcome))
		for _, msg := range a.executeRound(ctx, outcome, state) {
			conv = conv.Append(msg)
		}
		a.logger.Debug("agent.round.complete", "agent", a.name, "round", rounds, "tool_calls", len(outcome.calls))
	}

	demux.Flush()
	text := demux.Channel(harmony.ChannelFinal)
	if text == "" {
		text = demux.FallbackText()
	}

	status := core.StatusSuccess
	if strings.TrimSpace(text) == "" {
		status = core.StatusEmptyResponse
	}

	result := &core.AgentResult{
		Text:      text,
		Status:    status,
		AgentName: a.name,
		Meta: map[string]any{
			"rounds":    rounds,
			"citations": state.citations.List(),
		},
	}
	done := core.NewEvent(core.EventAgentComplete, a.name)
	done.Data = map[string]any{"status": string(status), "rounds": rounds}
	a.bus.Publish(done)
	return result, nil
}

// roundOutcome is what one streamed model round produced.
type roundOutcome struct {
	calls      []core.ToolCall
	incomplete []*core.ToolCallFragment
	finish     string
}

// streamRound issues one streaming request and consumes it to completion,
// forwarding live final-channel content and accumulating tool-call deltas.
func (a *Agent) streamRound(ctx context.Context, req model.Request, demux *harmony.Demux, onToken func(string)) (*roundOutcome, error) {
	events, errs := a.llm.Generate(ctx, req)

	asm := core.NewFragmentAssembler()
	outcome := &roundOutcome{}

	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Content != "" {
				live := demux.Write(ev.Content)
				if live != "" {
					a.bus.Publish(core.NewTokenEvent(a.name, live))
					if onToken != nil {
						onToken(live)
					}
				}
			}
			for _, delta := range ev.ToolCallDeltas {
				asm.ApplyDelta(delta)
			}
			if ev.FinishReason != "" {
				outcome.finish = ev.FinishReason
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	outcome.calls, outcome.incomplete = asm.Materialize()
	return outcome, nil
}

// assistantCallMessage pairs the round's tool calls, complete and otherwise,
// with the tool-result messages that follow. Incomplete fragments are
// included so their error results have a matching tool_call_id.
func assistantCallMessage(outcome *roundOutcome) core.Message {
	calls := make([]core.ToolCall, 0, len(outcome.calls)+len(outcome.incomplete))
	calls = append(calls, outcome.calls...)
	for _, frag := range outcome.incomplete {
		calls = append(calls, frag.ToolCall())
	}
	return core.NewToolCallMessage(calls)
}

func applyEffort(prompt string, effort ReasoningEffort) string {
	instruction := ""
	switch effort {
	case EffortLow:
		instruction = "Answer directly and concisely. Do not show your reasoning."
	case EffortHigh:
		instruction = "Work through the problem carefully before answering. Verify intermediate steps."
	}
	if instruction == "" {
		return prompt
	}
	return prompt + "\n\n" + instruction
}
