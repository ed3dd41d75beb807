// Package config loads sessioncore's configuration from a YAML or
// JSON5 file, with environment variable expansion and $include
// directives, following the same loading idiom the wider retrieved
// example pack uses for its own gateway configuration.
package config

import "time"

// Config is the top-level configuration for a sessioncore server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Session       SessionConfig       `yaml:"session"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Search        SearchConfig        `yaml:"search"`
	Browser       BrowserConfig       `yaml:"browser"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig controls the reference HTTP/SSE transport.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig points at the durable CockroachDB-compatible store.
// When URL is empty, in-memory stores are used instead.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LLMConfig configures the chat-completion backend shared by the
// planner and executor roles.
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // "anthropic" or "openai"
	APIKey       string  `yaml:"api_key"`
	DefaultModel string  `yaml:"default_model"`
	BaseURL      string  `yaml:"base_url"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// SessionConfig controls default session/agent-loop behavior.
type SessionConfig struct {
	DefaultAgentID   string        `yaml:"default_agent_id"`
	MaxIterations    int           `yaml:"max_iterations"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// SandboxConfig configures the external sandbox runtime collaborator.
type SandboxConfig struct {
	Backend   string        `yaml:"backend"` // "docker" or "firecracker"
	Image     string        `yaml:"image"`
	Network   string        `yaml:"network"`
	TTL       time.Duration `yaml:"ttl"`
	ProxyAddr string        `yaml:"proxy_addr"`
}

// SearchConfig configures the optional web-search tool backend.
type SearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	EngineID string `yaml:"engine_id"`
}

// BrowserConfig configures the pooled Playwright browser tool. When
// RemoteURL is set, the pool connects to a sandbox-hosted browser
// server instead of launching a local one.
type BrowserConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxInstances   int           `yaml:"max_instances"`
	Headless       bool          `yaml:"headless"`
	Timeout        time.Duration `yaml:"timeout"`
	RemoteURL      string        `yaml:"remote_url"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
}

// ObservabilityConfig controls structured logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"
	Metrics   bool   `yaml:"metrics_enabled"`
	Tracing   bool   `yaml:"tracing_enabled"`
}

// Default returns a Config with the same defaults the reference CLI
// falls back to when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080, MetricsPort: 9090},
		LLM:    LLMConfig{Provider: "anthropic", DefaultModel: "claude-opus-4", Temperature: 0.2, MaxTokens: 4096},
		Session: SessionConfig{
			DefaultAgentID:  "main",
			MaxIterations:   30,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Sandbox:       SandboxConfig{Backend: "docker", Image: "sessioncore/sandbox:latest", TTL: time.Hour},
		Browser:       BrowserConfig{MaxInstances: 3, Headless: true, Timeout: 30 * time.Second, ViewportWidth: 1280, ViewportHeight: 800},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "json", Metrics: true},
	}
}
