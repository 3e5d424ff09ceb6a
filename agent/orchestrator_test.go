package agent

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/model"
	"github.com/agentrelay/agentrelay/tool"
)

func TestAgentTool_Call(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("translated text")}}
	sub := New("translator", llm, nil, func(o *Options) {
		o.Description = "Translates text"
		o.SystemPrompt = "You translate everything to French."
	})

	at := NewAgentTool(sub)
	assert.Equal(t, "translator", at.Name())
	assert.Equal(t, "Translates text", at.Description())

	result, err := at.Call(tool.NewContext(context.Background(), "call_1", nil), map[string]any{
		"task":    "translate hello",
		"context": "formal register",
	})
	require.NoError(t, err)

	payload, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "translated text", payload["content"])
	assert.Equal(t, "translator", payload["agent"])
	assert.Equal(t, string(core.StatusSuccess), payload["status"])

	// The sub-agent ran under its own system prompt with the context-prefixed
	// task as the only user message.
	msgs := llm.request(0).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You translate everything to French.")
	assert.Equal(t, "Context: formal register\n\nTask: translate hello", msgs[1].Content)
}

func TestAgentTool_MissingTask(t *testing.T) {
	sub := New("idle", &scriptedModel{rounds: [][]model.StreamEvent{contentRound("x")}}, nil)
	_, err := NewAgentTool(sub).Call(tool.NewContext(context.Background(), "call_1", nil), map[string]any{})

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestAgentTool_FailureIsStructured(t *testing.T) {
	sub := New("broken", &failingModel{err: assert.AnError}, nil)
	result, err := NewAgentTool(sub).Call(tool.NewContext(context.Background(), "call_1", nil), map[string]any{"task": "try"})
	require.NoError(t, err)

	payload, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(core.StatusError), payload["status"])
	assert.Contains(t, payload["content"], "Error:")
}

func TestOrchestrator_MandatoryToolUsagePrompt(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("done")}}
	o := NewOrchestrator("root", llm)

	_, err := o.Run(context.Background(), core.Conversation{core.NewUserMessage("hi")})
	require.NoError(t, err)

	msgs := llm.request(0).Messages
	require.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "MUST call it")
}

func TestOrchestrator_SubAgentEventsForwarded(t *testing.T) {
	subLLM := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("delegated answer")}}
	sub := New("researcher", subLLM, nil, func(o *Options) { o.Description = "Research tasks" })

	rootLLM := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_1", "researcher", `{"task":"look it up"}`),
		contentRound("final"),
	}}
	o := NewOrchestrator("root", rootLLM)
	require.NoError(t, o.AddSubAgent(sub))

	var mu sync.Mutex
	var forwarded []core.Event
	o.Events().Subscribe(core.EventSubAgent, func(e core.Event) {
		mu.Lock()
		forwarded = append(forwarded, e)
		mu.Unlock()
	})

	result, err := o.Run(context.Background(), core.Conversation{core.NewUserMessage("research this")})
	require.NoError(t, err)
	assert.Equal(t, "final", result.Text)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, forwarded)
	types := map[string]bool{}
	for _, e := range forwarded {
		assert.Equal(t, core.EventSubAgent, e.Type)
		assert.Equal(t, "researcher", e.Agent)
		assert.Equal(t, "root.researcher", e.Path)
		assert.Equal(t, 1, e.Level)
		types[e.Data["event"].(string)] = true
	}
	assert.True(t, types[string(core.EventAgentStart)])
	assert.True(t, types[string(core.EventAgentComplete)])
}

func TestOrchestrator_FrozenAfterFirstRun(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("ok")}}
	o := NewOrchestrator("root", llm)

	_, err := o.Run(context.Background(), core.Conversation{core.NewUserMessage("hi")})
	require.NoError(t, err)

	err = o.RegisterTool(tool.NewCitationTool())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestNestedOrchestrator_HierarchyPaths(t *testing.T) {
	leafLLM := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("leaf answer")}}
	b := New("B", leafLLM, nil, func(o *Options) { o.Description = "Leaf worker" })

	midSnap, err := tool.SnapshotOf(NewAgentTool(b))
	require.NoError(t, err)
	midLLM := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_b", "B", `{"task":"dig deeper"}`),
		contentRound("mid answer"),
	}}
	a := New("A", midLLM, midSnap, func(o *Options) { o.Description = "Mid coordinator" })

	rootLLM := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_a", "A", `{"task":"handle it"}`),
		contentRound("root answer"),
	}}
	root := NewNestedOrchestrator("root", rootLLM)
	require.NoError(t, root.AddSubAgent(a))

	assert.Equal(t, []string{"root.A", "root.A.B"}, root.Paths())

	var mu sync.Mutex
	var fromB []core.Event
	root.Events().Subscribe(core.EventSubAgent, func(e core.Event) {
		if e.Agent == "B" {
			mu.Lock()
			fromB = append(fromB, e)
			mu.Unlock()
		}
	})

	result, err := root.Run(context.Background(), core.Conversation{core.NewUserMessage("go")})
	require.NoError(t, err)
	assert.Equal(t, "root answer", result.Text)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, fromB)
	for _, e := range fromB {
		assert.Equal(t, "root.A.B", e.Path)
		assert.Equal(t, 2, e.Level)
	}
}

func TestNestedOrchestrator_WiringTornDownAfterRun(t *testing.T) {
	subLLM := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("sub answer")}}
	sub := New("helper", subLLM, nil)

	rootLLM := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("no delegation")}}
	root := NewNestedOrchestrator("root", rootLLM)
	require.NoError(t, root.AddSubAgent(sub))

	var mu sync.Mutex
	count := 0
	root.Events().Subscribe(core.EventSubAgent, func(e core.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	_, err := root.Run(context.Background(), core.Conversation{core.NewUserMessage("hi")})
	require.NoError(t, err)

	// Outside a run, sub-agent activity must not reach the root bus.
	_, err = sub.Run(context.Background(), core.Conversation{core.NewUserMessage("solo")})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestNestedOrchestrator_NoDoubleForwardAcrossRuns(t *testing.T) {
	subLLM := &scriptedModel{rounds: [][]model.StreamEvent{
		contentRound("first"),
		contentRound("second"),
	}}
	sub := New("helper", subLLM, nil)

	rootLLM := &scriptedModel{rounds: [][]model.StreamEvent{
		toolCallRound("call_1", "helper", `{"task":"one"}`),
		contentRound("done one"),
		toolCallRound("call_2", "helper", `{"task":"two"}`),
		contentRound("done two"),
	}}
	root := NewNestedOrchestrator("root", rootLLM)
	require.NoError(t, root.AddSubAgent(sub))

	var mu sync.Mutex
	starts := 0
	root.Events().Subscribe(core.EventSubAgent, func(e core.Event) {
		if e.Data["event"] == string(core.EventAgentStart) {
			mu.Lock()
			starts++
			mu.Unlock()
		}
	})

	_, err := root.Run(context.Background(), core.Conversation{core.NewUserMessage("first")})
	require.NoError(t, err)
	_, err = root.Run(context.Background(), core.Conversation{core.NewUserMessage("second")})
	require.NoError(t, err)

	// One forwarded start per run; stale wiring from run one would double the
	// count on run two.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, starts)
}

func TestEffortInstructionInjection(t *testing.T) {
	llm := &scriptedModel{rounds: [][]model.StreamEvent{contentRound("ok")}}
	a := New("terse", llm, nil, func(o *Options) {
		o.SystemPrompt = "Base prompt."
		o.ReasoningEffort = EffortLow
	})

	_, err := a.Run(context.Background(), core.Conversation{core.NewUserMessage("hi")})
	require.NoError(t, err)

	system := llm.request(0).Messages[0].Content
	assert.True(t, strings.HasPrefix(system, "Base prompt."))
	assert.Contains(t, system, "concisely")
}
