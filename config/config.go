// Package config loads the YAML configuration that assembles an agent
// hierarchy: inference endpoint, tool sources and per-agent settings.
// Values may reference environment variables with ${NAME}.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Inference InferenceConfig `yaml:"inference"`
	Tools     ToolsConfig     `yaml:"tools"`
	Agents    []AgentConfig   `yaml:"agents"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// InferenceConfig points at the chat completion backend.
type InferenceConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// Timeout returns the request timeout as a duration.
func (c InferenceConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ToolsConfig lists external tool sources.
type ToolsConfig struct {
	// MCPEndpoints are tool protocol servers whose tools are discovered at
	// startup. A failing endpoint degrades to zero tools instead of aborting.
	MCPEndpoints []string `yaml:"mcp_endpoints"`
}

// AgentConfig declares one agent of the hierarchy.
type AgentConfig struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	SystemPrompt    string `yaml:"system_prompt"`
	ReasoningEffort string `yaml:"reasoning_effort"`
	// Tools restricts the agent to a registry subset; empty means all tools.
	Tools     []string `yaml:"tools"`
	MaxRounds int      `yaml:"max_rounds"`
}

// Default returns a configuration with working defaults for a local backend.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Inference: InferenceConfig{
			Endpoint:       "http://localhost:8080/v1/chat/completions",
			TimeoutSeconds: 120,
			Temperature:    0.7,
		},
	}
}

// Load reads, expands and validates a configuration file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes, expanding ${NAME} environment references before
// decoding. Unknown keys are rejected so typos surface at startup.
func Parse(raw []byte) (Config, error) {
	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants a misconfigured deployment would otherwise hit
// at request time.
func (c Config) Validate() error {
	if c.Inference.Endpoint == "" {
		return fmt.Errorf("inference.endpoint is required")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	seen := map[string]bool{}
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[].name is required")
		}
		if seen[a.Name] {
			return fmt.Errorf("agent %q declared twice", a.Name)
		}
		seen[a.Name] = true

		switch a.ReasoningEffort {
		case "", "low", "medium", "high":
		default:
			return fmt.Errorf("agent %q: reasoning_effort %q is not one of low, medium, high", a.Name, a.ReasoningEffort)
		}
		if a.MaxRounds < 0 {
			return fmt.Errorf("agent %q: max_rounds must not be negative", a.Name)
		}
	}
	return nil
}
