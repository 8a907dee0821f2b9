package config

import "time"

// Settings is the root configuration for the chat client.
type Settings struct {
	LLM         LLMSettings                `json:"llm,omitempty"`
	ToolCalling ToolCallingSettings        `json:"toolCalling,omitempty"`
	UI          UISettings                 `json:"ui,omitempty"`
	MCP         map[string]MCPServerConfig `json:"mcp,omitempty"`
}

// LLMSettings selects the chat backend and model.
type LLMSettings struct {
	// Provider is the active backend, "ollama" or "openai".
	Provider string `json:"provider,omitempty"`
	// Model is the model name passed to the backend.
	Model string `json:"model,omitempty"`
	// OllamaHost is the base URL of the Ollama server.
	OllamaHost string `json:"ollamaHost,omitempty"`
	// OpenAIAPIKey authenticates against the OpenAI API.
	OpenAIAPIKey string `json:"openaiApiKey,omitempty"`
	// OpenAIBaseURL overrides the OpenAI endpoint, for compatible gateways.
	OpenAIBaseURL string `json:"openaiBaseUrl,omitempty"`
}

// ToolCallingSettings bounds automatic tool-call chaining.
type ToolCallingSettings struct {
	// MaxIterations caps chain iterations per user message. Zero or
	// negative values fall back to the default.
	MaxIterations int `json:"maxIterations,omitempty"`
	// MaxWorkingTimeSeconds caps wall-clock chain time. Zero disables
	// the time bound.
	MaxWorkingTimeSeconds float64 `json:"maxWorkingTimeSeconds,omitempty"`
}

// MaxWorkingTime returns the time bound as a duration, zero when disabled.
func (s ToolCallingSettings) MaxWorkingTime() time.Duration {
	if s.MaxWorkingTimeSeconds <= 0 {
		return 0
	}
	return time.Duration(s.MaxWorkingTimeSeconds * float64(time.Second))
}

// UISettings controls terminal output.
type UISettings struct {
	// Colors enables ANSI color output. Nil means auto (on for TTYs).
	Colors *bool `json:"colors,omitempty"`
	// ShowUsage prints token usage after each response.
	ShowUsage bool `json:"showUsage,omitempty"`
}

// MCPServerConfig describes one MCP server to connect at startup.
type MCPServerConfig struct {
	// Command launches a stdio server; the first element is the binary.
	Command []string `json:"command,omitempty"`
	// URL connects to a remote server over streamable HTTP.
	URL string `json:"url,omitempty"`
	// Headers are sent with every request to a remote server.
	Headers map[string]string `json:"headers,omitempty"`
	// Environment is added to a stdio server's process environment.
	Environment map[string]string `json:"environment,omitempty"`
	// Enabled defaults to true when nil.
	Enabled *bool `json:"enabled,omitempty"`
	// TimeoutSeconds bounds individual tool calls. Zero means no bound.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// IsEnabled reports whether the server should be connected.
func (c MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Timeout returns the per-call timeout, zero when unbounded.
func (c MCPServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Defaults used when a setting is absent from every source.
const (
	DefaultProvider              = "ollama"
	DefaultOllamaHost            = "http://localhost:11434"
	DefaultOllamaModel           = "llama3.1"
	DefaultOpenAIModel           = "gpt-4o-mini"
	DefaultMaxIterations         = 5
	DefaultMaxWorkingTimeSeconds = 30
)

// NewSettings returns settings populated with defaults.
func NewSettings() *Settings {
	return &Settings{
		LLM: LLMSettings{
			Provider:   DefaultProvider,
			Model:      DefaultOllamaModel,
			OllamaHost: DefaultOllamaHost,
		},
		ToolCalling: ToolCallingSettings{
			MaxIterations:         DefaultMaxIterations,
			MaxWorkingTimeSeconds: DefaultMaxWorkingTimeSeconds,
		},
		MCP: make(map[string]MCPServerConfig),
	}
}
