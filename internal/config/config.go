package config

import (
	"fmt"
	"time"
)

// Config represents the runtime configuration of the orchestration core.
type Config struct {
	// Runner
	Runner RunnerConfig `json:"runner" mapstructure:"runner"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Session store
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Approval store
	Approval ApprovalConfig `json:"approval" mapstructure:"approval"`

	// Knowledge
	Knowledge KnowledgeConfig `json:"knowledge" mapstructure:"knowledge"`

	// Providers
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RunnerConfig bounds the orchestration loop.
type RunnerConfig struct {
	MaxIterations int    `json:"max_iterations" mapstructure:"max_iterations"`
	BasePrompt    string `json:"base_prompt" mapstructure:"base_prompt"`
}

// ToolsConfig bounds tool execution.
type ToolsConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" mapstructure:"default_timeout"`
	AbortGrace     time.Duration `json:"abort_grace" mapstructure:"abort_grace"`
	MaxOutputBytes int           `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// SessionConfig bounds the session store.
type SessionConfig struct {
	Backend               string `json:"backend" mapstructure:"backend"` // memory, sqlite
	DBPath                string `json:"db_path" mapstructure:"db_path"`
	MaxSessions           int    `json:"max_sessions" mapstructure:"max_sessions"`
	MaxMessagesPerSession int    `json:"max_messages_per_session" mapstructure:"max_messages_per_session"`
	MaxStepsPerSession    int    `json:"max_steps_per_session" mapstructure:"max_steps_per_session"`
}

// MemoryConfig bounds conversational memory.
type MemoryConfig struct {
	MaxEntries    int           `json:"max_entries" mapstructure:"max_entries"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	RecentN       int           `json:"recent_n" mapstructure:"recent_n"`
	SweepSchedule string        `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// ApprovalConfig bounds the approval store.
type ApprovalConfig struct {
	MaxRequests int `json:"max_requests" mapstructure:"max_requests"`
}

// KnowledgeConfig points at the knowledge space root.
type KnowledgeConfig struct {
	Root string `json:"root" mapstructure:"root"`
}

// ProvidersConfig holds model provider credentials.
type ProvidersConfig struct {
	Default   string `json:"default" mapstructure:"default"` // anthropic, openai
	Anthropic struct {
		APIKey string `json:"api_key" mapstructure:"api_key"`
		Model  string `json:"model" mapstructure:"model"`
	} `json:"anthropic" mapstructure:"anthropic"`
	OpenAI struct {
		APIKey string `json:"api_key" mapstructure:"api_key"`
		Model  string `json:"model" mapstructure:"model"`
	} `json:"openai" mapstructure:"openai"`
}

// LoggingConfig configures the zerolog pipeline.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Runner: RunnerConfig{
			MaxIterations: 6,
		},
		Tools: ToolsConfig{
			DefaultTimeout: 10 * time.Second,
			AbortGrace:     250 * time.Millisecond,
			MaxOutputBytes: 10 * 1024,
		},
		Session: SessionConfig{
			Backend:               "memory",
			MaxSessions:           1000,
			MaxMessagesPerSession: 500,
			MaxStepsPerSession:    500,
		},
		Memory: MemoryConfig{
			MaxEntries:    200,
			TTL:           24 * time.Hour,
			RecentN:       10,
			SweepSchedule: "@hourly",
		},
		Approval: ApprovalConfig{
			MaxRequests: 1000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
		},
	}
	cfg.Providers.Default = "anthropic"
	return cfg
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Runner.MaxIterations <= 0 {
		return fmt.Errorf("runner.max_iterations must be positive")
	}
	if c.Tools.DefaultTimeout <= 0 {
		return fmt.Errorf("tools.default_timeout must be positive")
	}
	if c.Session.Backend != "memory" && c.Session.Backend != "sqlite" {
		return fmt.Errorf("session.backend must be memory or sqlite, got %q", c.Session.Backend)
	}
	if c.Session.Backend == "sqlite" && c.Session.DBPath == "" {
		return fmt.Errorf("session.db_path is required for the sqlite backend")
	}
	switch c.Providers.Default {
	case "anthropic", "openai", "":
	default:
		return fmt.Errorf("providers.default must be anthropic or openai, got %q", c.Providers.Default)
	}
	return nil
}
