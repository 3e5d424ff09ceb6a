package tool

import (
	"context"

	"github.com/agentrelay/agentrelay/logging"
	"github.com/agentrelay/agentrelay/mcp"
)

// RemoteTool exposes one tool served by an external protocol endpoint. Calls
// are forwarded over the client's session; a result flagged as an error by
// the server becomes a *ToolError with code EXECUTION_ERROR.
type RemoteTool struct {
	client *mcp.Client
	info   mcp.ToolInfo
}

// NewRemoteTool wraps a discovered remote tool descriptor.
func NewRemoteTool(client *mcp.Client, info mcp.ToolInfo) *RemoteTool {
	return &RemoteTool{client: client, info: info}
}

func (t *RemoteTool) Name() string        { return t.info.Name }
func (t *RemoteTool) Description() string { return t.info.Description }

func (t *RemoteTool) Parameters() map[string]any {
	if t.info.InputSchema == nil {
		return map[string]any{"type": "object"}
	}
	return t.info.InputSchema
}

// Call forwards the invocation to the remote endpoint.
func (t *RemoteTool) Call(toolCtx *Context, args map[string]any) (any, error) {
	result, err := t.client.CallTool(toolCtx.Context(), t.info.Name, args)
	if err != nil {
		return nil, &ToolError{
			Tool:    t.info.Name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}
	if result.IsError {
		return nil, &ToolError{
			Tool:    t.info.Name,
			Message: result.Text(),
			Code:    CodeExecution,
		}
	}
	return result.Text(), nil
}

// DiscoverRemote runs the protocol handshake against the client and returns
// the served tools wrapped as RemoteTools. Discovery is fail-open: any
// handshake or listing failure is logged and an empty slice returned, so a
// dead endpoint degrades the tool set instead of aborting assembly.
func DiscoverRemote(ctx context.Context, client *mcp.Client, logger logging.Logger) []Tool {
	logger = logging.OrNoOp(logger)

	if err := client.Initialize(ctx); err != nil {
		logger.Warn("tool.remote.discovery_failed", "stage", "initialize", "error", err)
		return nil
	}
	if err := client.NotifyInitialized(ctx); err != nil {
		logger.Warn("tool.remote.discovery_failed", "stage", "initialized", "error", err)
		return nil
	}
	infos, err := client.ListTools(ctx)
	if err != nil {
		logger.Warn("tool.remote.discovery_failed", "stage", "list", "error", err)
		return nil
	}

	tools := make([]Tool, 0, len(infos))
	for _, info := range infos {
		tools = append(tools, NewRemoteTool(client, info))
	}
	logger.Info("tool.remote.discovered", "endpoint_tools", len(tools))
	return tools
}
