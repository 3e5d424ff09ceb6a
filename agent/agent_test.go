package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/model"
	"github.com/agentrelay/agentrelay/tool"
)

// scriptedModel replays a fixed sequence of streamed rounds. When more rounds
// are requested than scripted, the last one repeats.
type scriptedModel struct {
	mu       sync.Mutex
	requests []model.Request
	rounds   [][]model.StreamEvent
}

func (m *scriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	m.mu.Unlock()

	if idx >= len(m.rounds) {
		idx = len(m.rounds) - 1
	}
	script := m.rounds[idx]

	events := make(chan model.StreamEvent, len(script))
	errs := make(chan error)
	go func() {
		defer close(events)
		defer close(errs)
		for _, ev := range script {
			events <- ev
		}
	}()
	return events, errs
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "test", SupportsTools: true}
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedModel) request(i int) model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

// toolCallRound builds a streamed round that spells one complete tool call
// across several deltas and finishes with tool_calls.
func toolCallRound(id, name, args string) []model.StreamEvent {
	half := len(args) / 2
	return []model.StreamEvent{
		{ToolCallDeltas: []core.ToolCallDelta{{Index: 0, ID: id, Type: "function", Name: name}}},
		{ToolCallDeltas: []core.ToolCallDelta{{Index: 0, Arguments: args[:half]}}},
		{ToolCallDeltas: []core.ToolCallDelta{{Index: 0, Arguments: args[half:]}}},
		{FinishReason: model.FinishToolCalls},
	}
}

func contentRound(text string) []model.StreamEvent {
	return []model.StreamEvent{
		{Content: text},
		{FinishReason: model.FinishStop},
	}
}

func searchTool(t *testing.T, executions *int) tool.Tool {
	t.Helper()
	var mu sync.Mutex
	return tool.NewFunctionTool("search", "Search the web",
		map[string]any{"type": "object", "properties": map[string]any{"query": map[string]any{"type": "string"}}},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			mu.Lock()
			*executions++
			mu.Unlock()
			return "sunny, 24 degrees", nil
		})
}

func TestAgent_EndToEnd(t *testing.T) {
	executions := 0
	snap, err := tool.SnapshotOf(searchTool(t, &executions))
	require.NoError(t, err)

	llm := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_1", "search", `{"query":"weather in Paris"}`),
		contentRound("It is sunny in Paris."),
	}}

	a := New("assistant", llm, snap)
	var streamed string
	result, err := a.Run(context.Background(),
		core.Conversation{core.NewUserMessage("weather in Paris?")},
		WithOnToken(func(token string) { streamed += token }))
	require.NoError(t, err)

	assert.Equal(t, 1, executions)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, "It is sunny in Paris.", result.Text)
	assert.Equal(t, "It is sunny in Paris.", streamed)

	// Exactly two messages appended between the model calls: the assistant
	// tool-call message and the paired tool result.
	require.Equal(t, 2, llm.calls())
	first := llm.request(0).Messages
	second := llm.request(1).Messages
	require.Len(t, second, len(first)+2)
	assert.Equal(t, core.RoleAssistant, second[len(first)].Role)
	require.Len(t, second[len(first)].ToolCalls, 1)
	assert.Equal(t, "call_1", second[len(first)].ToolCalls[0].ID)
	assert.Equal(t, core.RoleTool, second[len(first)+1].Role)
	assert.Equal(t, "sunny, 24 degrees", second[len(first)+1].Content)
	assert.Equal(t, "call_1", second[len(first)+1].ToolCallID)

	// Tools array sent with auto choice on both rounds.
	assert.NotEmpty(t, llm.request(0).Tools)
	assert.Equal(t, "auto", llm.request(0).ToolChoice)
}

func TestAgent_RoundCap(t *testing.T) {
	executions := 0
	snap, err := tool.SnapshotOf(searchTool(t, &executions))
	require.NoError(t, err)

	// Every round requests another tool call; the loop must stop at the cap
	// without an error, and the capped round's calls are never executed
	// since no round remains to consume their results.
	llm := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_1", "search", `{"query":"again"}`),
	}}

	a := New("looper", llm, snap, func(o *Options) { o.MaxRounds = 3 })
	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("go")})
	require.NoError(t, err)

	assert.Equal(t, 3, llm.calls())
	assert.Equal(t, 2, executions)
	assert.Equal(t, core.StatusEmptyResponse, result.Status)
}

func TestAgent_NoToolsOmitsToolsArray(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("hi")}}
	a := New("bare", llm, nil)

	_, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("hello")})
	require.NoError(t, err)
	assert.Empty(t, llm.request(0).Tools)
	assert.Empty(t, llm.request(0).ToolChoice)
}

func TestAgent_CitationInterception(t *testing.T) {
	snap, err := tool.SnapshotOf(tool.NewCitationTool())
	require.NoError(t, err)

	args := `{"text":"Go 1.0 shipped in 2012.","sources":[{"url":"https://go.dev/blog/go1","number":1}]}`
	llm := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_1", "citation", args),
		contentRound("Done."),
	}}

	a := New("citer", llm, snap)
	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("when did Go 1.0 ship?")})
	require.NoError(t, err)

	citations, ok := result.Meta["citations"].([]core.Citation)
	require.True(t, ok)
	require.Len(t, citations, 1)
	assert.Equal(t, "https://go.dev/blog/go1", citations[0].URL)

	// The citation text was injected as the tool result.
	second := llm.request(1).Messages
	assert.Equal(t, "Go 1.0 shipped in 2012.", second[len(second)-1].Content)
}

func TestAgent_SiblingFailureIsolation(t *testing.T) {
	okCalls := 0
	okTool := tool.NewFunctionTool("steady", "Always works", map[string]any{"type": "object"},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			okCalls++
			return "fine", nil
		})
	badTool := tool.NewFunctionTool("flaky", "Always fails", map[string]any{"type": "object"},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend gone")
		})
	panicTool := tool.NewFunctionTool("grenade", "Always panics", map[string]any{"type": "object"},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			panic("pulled the pin")
		})

	snap, err := tool.SnapshotOf(okTool, badTool, panicTool)
	require.NoError(t, err)

	round := []model.StreamEvent{
		{ToolCallDeltas: []core.ToolCallDelta{
			{Index: 0, ID: "call_a", Type: "function", Name: "steady", Arguments: "{}"},
			{Index: 1, ID: "call_b", Type: "function", Name: "flaky", Arguments: "{}"},
			{Index: 2, ID: "call_c", Type: "function", Name: "grenade", Arguments: "{}"},
		}},
		{FinishReason: model.FinishToolCalls},
	}
	llm := &scriptedModel{rounds: [][]model.StreamEvent{round, contentRound("survived")}}

	a := New("mixed", llm, snap)
	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("go")})
	require.NoError(t, err)
	assert.Equal(t, "survived", result.Text)
	assert.Equal(t, 1, okCalls)

	second := llm.request(1).Messages
	byID := map[string]string{}
	for _, msg := range second {
		if msg.Role == core.RoleTool {
			byID[msg.ToolCallID] = msg.Content
		}
	}
	assert.Equal(t, "fine", byID["call_a"])
	assert.Contains(t, byID["call_b"], "Error:")
	assert.Contains(t, byID["call_c"], "panicked")
}

func TestAgent_IncompleteArgumentsRecoverable(t *testing.T) {
	executions := 0
	snap, err := tool.SnapshotOf(searchTool(t, &executions))
	require.NoError(t, err)

	round := []model.StreamEvent{
		{ToolCallDeltas: []core.ToolCallDelta{{Index: 0, ID: "call_1", Type: "function", Name: "search", Arguments: `{"query":"unterm`}}},
		{FinishReason: model.FinishToolCalls},
	}
	llm := &scriptedModel{rounds: [][]model.StreamEvent{round, contentRound("recovered")}}

	a := New("fixer", llm, snap)
	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("go")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	assert.Equal(t, 0, executions)

	second := llm.request(1).Messages
	last := second[len(second)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Contains(t, last.Content, "incomplete or invalid arguments")
}

func TestAgent_TransportErrorTerminal(t *testing.T) {
	llm := &failingModel{err: errors.New("connection refused")}
	a := New("doomed", llm, nil)

	var sawError bool
	a.Events().Subscribe(core.EventAgentError, func(e core.Event) { sawError = true })

	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, core.StatusError, result.Status)
	assert.True(t, sawError)
}

type failingModel struct{ err error }

func (m *failingModel) Generate(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	events := make(chan model.StreamEvent)
	errs := make(chan error, 1)
	errs <- m.err
	close(events)
	close(errs)
	return events, errs
}

func (m *failingModel) Info() model.Info { return model.Info{Name: "failing", Provider: "test"} }

func TestAgent_AnalysisSuppressedFromStream(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{{
		{Content: "<|channel|>analysis<|message|>thinking hard<|end|>"},
		{Content: "the answer"},
		{FinishReason: model.FinishStop},
	}}}
	a := New("quiet", llm, nil)

	var streamed string
	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("q")},
		WithOnToken(func(token string) { streamed += token }))
	require.NoError(t, err)
	assert.Equal(t, "the answer", streamed)
	assert.Equal(t, "the answer", result.Text)
}

func TestAgent_FallbackWhenFinalEmpty(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{{
		{Content: "<|channel|>analysis<|message|>only reasoning here"},
		{FinishReason: model.FinishStop},
	}}}
	a := New("thinker", llm, nil)

	result, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "only reasoning here", result.Text)
}
