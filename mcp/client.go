// Package mcp implements a JSON-RPC 2.0 client for an external tool server
// speaking the Model Context Protocol over a single HTTP endpoint. The
// lifecycle is a three-step handshake (initialize, notifications/initialized,
// tools/list) followed by any number of tools/call invocations. Session
// continuity uses a session-id header echoed on request and response.
//
// A Client's session identifier is scoped to the instance's lifetime;
// concurrent logical sessions require separate instances.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agentrelay/agentrelay/logging"
)

// SessionHeader carries the server-assigned session identifier.
const SessionHeader = "Mcp-Session-Id"

// protocolVersion is the protocol revision sent in the initialize envelope.
const protocolVersion = "2024-11-05"

// Options configure the protocol client.
type Options struct {
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        logging.Logger
	ClientName    string
	ClientVersion string
}

// Client is a stateful protocol client bound to one endpoint and session.
type Client struct {
	endpoint      string
	client        *http.Client
	logger        logging.Logger
	clientName    string
	clientVersion string

	nextID  atomic.Int64
	session string
}

// NewClient creates a protocol client for the given endpoint.
func NewClient(endpoint string, optFns ...func(o *Options)) *Client {
	opts := Options{
		Timeout:       30 * time.Second,
		ClientName:    "agentrelay",
		ClientVersion: "0.1.0",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint:      endpoint,
		client:        httpClient,
		logger:        logging.OrNoOp(opts.Logger),
		clientName:    opts.ClientName,
		clientVersion: opts.ClientVersion,
	}
}

// ToolInfo describes one remotely served tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is one element of a tools/call result content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the structured outcome of a tools/call invocation.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// Text concatenates the text blocks of the result content.
func (r *CallResult) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "" || c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// SessionID returns the server-assigned session identifier, empty before a
// successful Initialize.
func (c *Client) SessionID() string { return c.session }

// Initialize performs the first handshake step: it sends the client and
// protocol capability envelope and captures the session identifier from the
// response header for all subsequent requests.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    c.clientName,
			"version": c.clientVersion,
		},
	}

	resp, body, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: "initialize", Params: params})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("initialize: HTTP %d", resp.StatusCode)
	}

	rpcResp, err := decodeBody(body)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("initialize: %w", rpcResp.Error)
	}

	if session := resp.Header.Get(SessionHeader); session != "" {
		c.session = session
	} else {
		c.logger.Warn("mcp.initialize.missing_session_header", "endpoint", c.endpoint)
	}
	return nil
}

// NotifyInitialized performs the second handshake step, a fire-and-forget
// notification. Both 200 and 202 responses are acceptable.
func (c *Client) NotifyInitialized(ctx context.Context) error {
	resp, _, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"})
	if err != nil {
		return fmt.Errorf("notifications/initialized: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notifications/initialized: HTTP %d", resp.StatusCode)
	}
	return nil
}

// ListTools enumerates the tools served by the endpoint.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("tools/list: decode result: %w", err)
	}
	return payload.Tools, nil
}

// CallTool invokes a remote tool by name with structured arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	params := map[string]any{"name": name, "arguments": args}
	result, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult CallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("tools/call: decode result: %w", err)
	}
	return &callResult, nil
}

// call issues one request/response method and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, body, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", method, resp.StatusCode)
	}
	rpcResp, err := decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// post sends one JSON-RPC message, threading the session header when set.
func (c *Client) post(ctx context.Context, req rpcRequest) (*http.Response, []byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if c.session != "" {
		httpReq.Header.Set(SessionHeader, c.session)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

// decodeBody unwraps a response body that is either a bare JSON document or a
// single SSE "data:" line wrapping JSON. It fails only when neither form
// parses.
func decodeBody(body []byte) (*rpcResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &rpcResponse{}, nil
	}

	var resp rpcResponse
	if err := json.Unmarshal(trimmed, &resp); err == nil {
		return &resp, nil
	}

	for _, line := range strings.Split(string(trimmed), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(payload), &resp); err == nil {
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("response body is neither JSON nor an SSE data line")
}
