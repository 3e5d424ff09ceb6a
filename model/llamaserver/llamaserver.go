// Package llamaserver implements model.Model against an OpenAI-compatible
// chat completion endpoint served by a local inference server. It speaks the
// wire protocol directly: JSON request body, newline-delimited "data:" frames
// on the streaming response, terminated by a [DONE] line or an observed
// finish reason.
package llamaserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/logging"
	"github.com/agentrelay/agentrelay/model"
)

const dataPrefix = "data:"

// Options configure the llamaserver model adapter.
type Options struct {
	// Endpoint is the full chat completions URL, e.g.
	// "http://localhost:8080/v1/chat/completions".
	Endpoint string
	// Model is the model identifier sent in the request body. Local servers
	// may ignore it; routers use it to select a backend.
	Model string
	// Timeout bounds each HTTP call including the full stream read.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
	// Logger receives frame-level diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Model is a raw wire-protocol client for a chat completion endpoint.
type Model struct {
	endpoint string
	model    string
	client   *http.Client
	logger   logging.Logger
}

// New creates a llamaserver model adapter.
func New(endpoint string, optFns ...func(o *Options)) *Model {
	opts := Options{
		Endpoint: endpoint,
		Timeout:  120 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Model{
		endpoint: opts.Endpoint,
		model:    opts.Model,
		client:   client,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// wireRequest is the JSON body of a chat completion request.
type wireRequest struct {
	Model       string                 `json:"model,omitempty"`
	Messages    core.Conversation      `json:"messages"`
	Temperature float64                `json:"temperature"`
	MaxTokens   int64                  `json:"max_tokens"`
	Stream      bool                   `json:"stream"`
	Tools       []model.ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string                 `json:"tool_choice,omitempty"`
}

// wireChunk is one decoded streaming frame.
type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// wireResponse is a non-streaming completion body.
type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string          `json:"content"`
			ToolCalls []core.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		body := wireRequest{
			Model:       m.model,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Stream:      req.Stream,
			Tools:       req.Tools,
			ToolChoice:  req.ToolChoice,
		}
		raw, err := json.Marshal(body)
		if err != nil {
			errCh <- fmt.Errorf("llamaserver: encode request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(raw))
		if err != nil {
			errCh <- fmt.Errorf("llamaserver: build request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(httpReq)
		if err != nil {
			errCh <- fmt.Errorf("llamaserver: request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errCh <- fmt.Errorf("llamaserver: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
			return
		}

		if req.Stream {
			m.readStream(resp.Body, out, errCh)
			return
		}
		m.readResponse(resp.Body, out, errCh)
	}()

	return out, errCh
}

// readStream decodes "data:" frames until [DONE], a finish reason, or EOF.
// A frame that fails to decode is logged and skipped rather than terminating
// the stream; only a transport-level read error is reported upward.
func (m *Model) readStream(body io.Reader, out chan<- model.StreamEvent, errCh chan<- error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == "[DONE]" {
			return
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			m.logger.Warn("llamaserver.frame.skipped", "error", err.Error())
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		ev := model.StreamEvent{Content: choice.Delta.Content}
		for _, tc := range choice.Delta.ToolCalls {
			ev.ToolCallDeltas = append(ev.ToolCallDeltas, core.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			ev.FinishReason = *choice.FinishReason
		}
		out <- ev
		if ev.FinishReason != "" {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		errCh <- fmt.Errorf("llamaserver: read stream: %w", err)
	}
}

// readResponse adapts a non-streaming completion body into a single terminal event.
func (m *Model) readResponse(body io.Reader, out chan<- model.StreamEvent, errCh chan<- error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		errCh <- fmt.Errorf("llamaserver: read response: %w", err)
		return
	}
	var resp wireResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		errCh <- fmt.Errorf("llamaserver: decode response: %w", err)
		return
	}
	if resp.Error != nil {
		errCh <- fmt.Errorf("llamaserver: %s", resp.Error.Message)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("llamaserver: no choices in response")
		return
	}

	choice := resp.Choices[0]
	ev := model.StreamEvent{Content: choice.Message.Content, FinishReason: choice.FinishReason}
	for i, tc := range choice.Message.ToolCalls {
		ev.ToolCallDeltas = append(ev.ToolCallDeltas, core.ToolCallDelta{
			Index:     i,
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	out <- ev
}

// Info returns metadata describing this backend.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.model, Provider: "llamaserver", SupportsTools: true}
}
