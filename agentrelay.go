// Package agentrelay provides a high-level façade over the orchestration
// core: streaming inference, tool-call dispatch, nested agents and remote
// tool discovery. Most applications interact with this package by:
//  1. Creating a Relay from a Config via New() (optionally overriding the
//     model, recorder or logger)
//  2. Registering native tools and sub-agents
//  3. Invoking Run (buffered) or RunStream (live tokens)
//
// All defaults are safe for local development; production deployments
// typically supply a durable Recorder and a structured logger.
package agentrelay

import (
	"context"
	"fmt"

	"github.com/agentrelay/agentrelay/agent"
	"github.com/agentrelay/agentrelay/classify"
	"github.com/agentrelay/agentrelay/config"
	"github.com/agentrelay/agentrelay/core"
	"github.com/agentrelay/agentrelay/logging"
	"github.com/agentrelay/agentrelay/mcp"
	"github.com/agentrelay/agentrelay/model"
	"github.com/agentrelay/agentrelay/model/llamaserver"
	"github.com/agentrelay/agentrelay/store"
	"github.com/agentrelay/agentrelay/tool"
)

// Options configure a Relay beyond what the file config carries.
type Options struct {
	// Model overrides the backend built from config.Inference.
	Model model.Model
	// Recorder persists finished runs; defaults to discarding them.
	Recorder store.Recorder
	// Logger defaults to a logger built from config.Logging.
	Logger logging.Logger
	// Tools are native tools registered before remote discovery.
	Tools []tool.Tool
	// OrchestratorName names the root agent. Defaults to "relay".
	OrchestratorName string
}

// Relay is the assembled orchestration core: one root orchestrator over the
// configured agents and tools, ready to serve concurrent requests.
type Relay struct {
	root     *agent.NestedOrchestrator
	recorder store.Recorder
	logger   logging.Logger
}

// New assembles a Relay from configuration. Remote tool discovery is
// fail-open: an unreachable tool endpoint logs a warning and contributes no
// tools, it never fails assembly.
func New(ctx context.Context, cfg config.Config, optFns ...func(o *Options)) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Recorder:         store.NoOpRecorder{},
		OrchestratorName: "relay",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(&logging.Config{Level: parseLevel(cfg.Logging.Level), Format: cfg.Logging.Format})
	}

	llm := opts.Model
	if llm == nil {
		llm = llamaserver.New(cfg.Inference.Endpoint, func(o *llamaserver.Options) {
			o.Model = cfg.Inference.Model
			o.Logger = logger
			if t := cfg.Inference.Timeout(); t > 0 {
				o.Timeout = t
			}
		})
	}

	registry := tool.NewRegistry()
	registry.MustRegister(tool.NewCitationTool())
	for _, t := range opts.Tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}
	for _, endpoint := range cfg.Tools.MCPEndpoints {
		client := mcp.NewClient(endpoint, func(o *mcp.Options) { o.Logger = logger })
		for _, t := range tool.DiscoverRemote(ctx, client, logger) {
			if err := registry.Register(t); err != nil {
				logger.Warn("relay.remote_tool.skipped", "tool", t.Name(), "error", err)
			}
		}
	}
	snapshot := registry.Snapshot()

	applyInference := func(o *agent.Options) {
		if cfg.Inference.Temperature > 0 {
			o.Temperature = cfg.Inference.Temperature
		}
		if cfg.Inference.MaxTokens > 0 {
			o.MaxTokens = int64(cfg.Inference.MaxTokens)
		}
		o.Logger = logger
	}

	root := agent.NewNestedOrchestrator(opts.OrchestratorName, llm, applyInference)
	for _, t := range snapshot.Tools() {
		if err := root.RegisterTool(t); err != nil {
			return nil, fmt.Errorf("wire tool: %w", err)
		}
	}
	for _, ac := range cfg.Agents {
		sub := agent.New(ac.Name, llm, snapshot, func(o *agent.Options) {
			applyInference(o)
			o.Description = ac.Description
			if ac.SystemPrompt != "" {
				o.SystemPrompt = ac.SystemPrompt
			}
			if ac.ReasoningEffort != "" {
				o.ReasoningEffort = agent.ReasoningEffort(ac.ReasoningEffort)
			}
			if ac.Tools != nil {
				o.Tools = ac.Tools
			}
			if ac.MaxRounds > 0 {
				o.MaxRounds = ac.MaxRounds
			}
		})
		if err := root.AddSubAgent(sub); err != nil {
			return nil, fmt.Errorf("wire agent %q: %w", ac.Name, err)
		}
	}

	return &Relay{root: root, recorder: opts.Recorder, logger: logging.OrNoOp(logger)}, nil
}

// Root returns the underlying orchestrator, for event subscriptions.
func (r *Relay) Root() *agent.NestedOrchestrator { return r.root }

// Route classifies a query without running it.
func (r *Relay) Route(query string) classify.Route { return classify.Classify(query) }

// Run executes one query to completion and returns the buffered result. The
// finished conversation and result are handed to the recorder; a recorder
// failure is logged, never surfaced to the caller.
func (r *Relay) Run(ctx context.Context, query string) (*core.AgentResult, error) {
	return r.run(ctx, query, nil)
}

// RunStream executes one query, delivering live content tokens to onToken as
// they stream from the model's final channel.
func (r *Relay) RunStream(ctx context.Context, query string, onToken func(token string)) (*core.AgentResult, error) {
	return r.run(ctx, query, onToken)
}

func (r *Relay) run(ctx context.Context, query string, onToken func(string)) (*core.AgentResult, error) {
	route := classify.Classify(query)
	r.logger.Debug("relay.query.routed", "route", string(route))

	conv := core.Conversation{core.NewUserMessage(query)}
	var runOpts []func(o *agent.RunOptions)
	if onToken != nil {
		runOpts = append(runOpts, agent.WithOnToken(onToken))
	}

	result, err := r.root.Run(ctx, conv, runOpts...)
	if result != nil {
		if result.Meta == nil {
			result.Meta = map[string]any{}
		}
		result.Meta["route"] = string(route)

		recErr := r.recorder.Record(ctx, store.Run{
			Conversation: conv,
			Results:      []core.AgentResult{*result},
		})
		if recErr != nil {
			r.logger.Warn("relay.record.failed", "error", recErr)
		}
	}
	return result, err
}

func parseLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
