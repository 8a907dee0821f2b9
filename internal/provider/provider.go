// Package provider provides the LLM backend abstraction and event-driven
// streaming for chat completions.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozo2/Hatchling/internal/event"
)

// Provider is a chat backend. Implementations publish streaming results as
// events on their Publisher rather than returning chunks to the caller.
type Provider interface {
	// ID returns the provider identifier, e.g. "ollama".
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Publisher returns the event publisher all streaming output goes to.
	Publisher() *event.Publisher

	// Initialize prepares the backend client.
	Initialize(ctx context.Context) error

	// Close releases backend resources and the publisher.
	Close() error

	// CheckHealth verifies the backend is reachable.
	CheckHealth(ctx context.Context) error

	// ListModels queries the backend for its available model names.
	ListModels(ctx context.Context) ([]string, error)

	// PrepareChatPayload builds a request payload from conversation history.
	PrepareChatPayload(messages []Message) *ChatPayload

	// AddToolsToPayload attaches tool definitions to a payload.
	AddToolsToPayload(payload *ChatPayload, tools []ToolDefinition)

	// StreamChatResponse runs one model turn, publishing role, content,
	// tool-call request, usage, and finish events as they occur. The
	// returned result carries the assembled response for history.
	StreamChatResponse(ctx context.Context, payload *ChatPayload) (*StreamResult, error)

	// ParseToolCallRequest extracts a tool call from a request event
	// previously published by this provider.
	ParseToolCallRequest(ev event.Event) (ToolCall, error)

	// ToolResultMessage converts an executed tool result into a history
	// message the backend understands.
	ToolResultMessage(result ToolResult) Message

	// AssistantToolCallMessage builds the assistant history message that
	// carries the tool calls of a turn.
	AssistantToolCallMessage(content string, calls []ToolCall) Message
}

// Message is one provider-independent conversation entry.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatPayload is a prepared request for one model turn.
type ChatPayload struct {
	Model    string
	Messages []Message
	Tools    []ToolDefinition
}

// ToolDefinition describes a callable tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema
}

// ToolCall is a parsed tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of executing a tool call. Err is set when the
// call failed; Content carries the result otherwise.
type ToolResult struct {
	Call    ToolCall `json:"call"`
	Content string   `json:"content,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// StreamResult is the assembled outcome of one streamed model turn.
type StreamResult struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// toolCallEventData builds the wire form of a tool-call request event,
// mirroring the OpenAI function-call shape.
func toolCallEventData(call ToolCall) map[string]any {
	args, _ := json.Marshal(call.Arguments)
	return map[string]any{
		"id": call.ID,
		"function": map[string]any{
			"name":      call.Name,
			"arguments": string(args),
		},
	}
}

// parseToolCallEventData is the inverse of toolCallEventData. It accepts
// arguments as either a JSON string or an already-decoded object, which
// covers both live events and events rehydrated from JSON.
func parseToolCallEventData(data map[string]any) (ToolCall, error) {
	call := ToolCall{}
	if id, ok := data["id"].(string); ok {
		call.ID = id
	}

	fn, ok := data["function"].(map[string]any)
	if !ok {
		return call, fmt.Errorf("tool call event missing function object")
	}
	name, ok := fn["name"].(string)
	if !ok || name == "" {
		return call, fmt.Errorf("tool call event missing function name")
	}
	call.Name = name

	switch args := fn["arguments"].(type) {
	case string:
		if args != "" {
			if err := json.Unmarshal([]byte(args), &call.Arguments); err != nil {
				return call, fmt.Errorf("invalid tool call arguments: %w", err)
			}
		}
	case map[string]any:
		call.Arguments = args
	case nil:
	default:
		return call, fmt.Errorf("unsupported tool call arguments type %T", args)
	}

	return call, nil
}

// errorEventData builds the payload of an error event.
func errorEventData(kind string, err error) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    kind,
			"message": err.Error(),
		},
	}
}
