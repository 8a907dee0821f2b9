package mcp

import "strings"

// Tool is an MCP tool exposed to the chat session. Name is prefixed with
// the owning server so tools from different servers cannot collide.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	Server      string         `json:"server"`
	Enabled     bool           `json:"enabled"`
}

// Status represents the connection status of a server.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisabled     Status = "disabled"
	StatusFailed       Status = "failed"
	StatusUnreachable  Status = "unreachable"
	StatusDisconnected Status = "disconnected"
)

// ServerStatus is a snapshot of one server's state.
type ServerStatus struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}

// toolNameSeparator joins the server prefix and the tool name.
const toolNameSeparator = "_"

// prefixedToolName builds the session-visible name of a server's tool.
func prefixedToolName(server, tool string) string {
	return sanitizeName(server) + toolNameSeparator + sanitizeName(tool)
}

// sanitizeName replaces non-alphanumeric chars with underscore so prefixed
// names satisfy provider tool naming rules.
func sanitizeName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
