package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/agentrelay/mcp"
)

type sumArgs struct {
	A float64 `json:"a" jsonschema_description:"First addend"`
	B float64 `json:"b" jsonschema_description:"Second addend"`
}

func newSumTool() *FunctionTool {
	return NewFunctionToolFromStruct(
		"calculate_sum",
		"Calculate the sum of two numbers",
		sumArgs{},
		func(toolCtx *Context, args map[string]any) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return a + b, nil
		},
	)
}

func TestFunctionTool_Call(t *testing.T) {
	sum := newSumTool()
	toolCtx := NewContext(context.Background(), "call_1", nil)

	result, err := sum.Call(toolCtx, map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ErrorNormalization(t *testing.T) {
	plain := NewFunctionTool("boom", "always fails", map[string]any{"type": "object"},
		func(toolCtx *Context, args map[string]any) (any, error) {
			return nil, errors.New("disk on fire")
		})

	_, err := plain.Call(NewContext(context.Background(), "call_1", nil), nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Tool)

	custom := NewFunctionTool("picky", "validates", map[string]any{"type": "object"},
		func(toolCtx *Context, args map[string]any) (any, error) {
			return nil, NewToolError("picky", "missing field", CodeValidation)
		})

	_, err = custom.Call(NewContext(context.Background(), "call_2", nil), nil)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor(sumArgs{})
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"a", "b"}, required)
}

func TestRegistry_RegisterAndFreeze(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newSumTool()))

	err := r.Register(newSumTool())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	snap := r.Snapshot()
	assert.Equal(t, 1, snap.Len())

	err = r.Register(NewCitationTool())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestSnapshot_FilterAndDefinitions(t *testing.T) {
	snap, err := SnapshotOf(newSumTool(), NewCitationTool())
	require.NoError(t, err)

	filtered := snap.Filter("citation", "calculate_sum", "nope", "citation")
	require.Equal(t, 2, filtered.Len())
	assert.Equal(t, "citation", filtered.Tools()[0].Name())
	assert.Equal(t, "calculate_sum", filtered.Tools()[1].Name())

	defs := snap.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "calculate_sum", defs[0].Function.Name)
	assert.NotEmpty(t, defs[0].Function.Parameters)
}

func TestRemoteTool_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"42"}],"isError":false}}`)
	}))
	defer server.Close()

	remote := NewRemoteTool(mcp.NewClient(server.URL), mcp.ToolInfo{Name: "answer", Description: "The answer"})
	result, err := remote.Call(NewContext(context.Background(), "call_1", nil), map[string]any{"q": "life"})
	require.NoError(t, err)
	assert.Equal(t, "42", result)
}

func TestRemoteTool_ServerFlaggedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"no such host"}],"isError":true}}`)
	}))
	defer server.Close()

	remote := NewRemoteTool(mcp.NewClient(server.URL), mcp.ToolInfo{Name: "fetch"})
	_, err := remote.Call(NewContext(context.Background(), "call_1", nil), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "no such host")
}

func TestDiscoverRemote_FailOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tools := DiscoverRemote(context.Background(), mcp.NewClient(server.URL), nil)
	assert.Empty(t, tools)
}

func TestDiscoverRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "initialize":
			w.Header().Set(mcp.SessionHeader, "s1")
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"search","description":"Web search","inputSchema":{"type":"object"}}]}}`)
		}
	}))
	defer server.Close()

	tools := DiscoverRemote(context.Background(), mcp.NewClient(server.URL), nil)
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name())
	assert.Equal(t, "Web search", tools[0].Description())
}
