// Package event provides the pub/sub event system coordinating streaming
// LLM responses and MCP tool calling.
package event

import "time"

// Type identifies the kind of an event.
type Type string

const (
	// LLM response events, published while a provider streams a reply.
	Content  Type = "content"  // text content delta from the model
	Role     Type = "role"     // role assignment (assistant, user, ...)
	Finish   Type = "finish"   // stream completion with reason
	Usage    Type = "usage"    // token usage statistics
	Error    Type = "error"    // error during streaming
	Refusal  Type = "refusal"  // model refused to answer
	Metadata Type = "metadata" // additional metadata (fingerprint, ...)

	// LLMToolCallRequest is published when the model requests a tool call.
	LLMToolCallRequest Type = "llm_tool_call_request"

	// MCP tool execution events.
	MCPToolCallDispatched Type = "mcp_tool_call_dispatched" // call handed to MCP for execution
	MCPToolCallResult     Type = "mcp_tool_call_result"     // call completed with a result
	MCPToolCallError      Type = "mcp_tool_call_error"      // call failed with an error

	// MCP server and tool lifecycle events.
	MCPServerUp          Type = "mcp_server_up"
	MCPServerDown        Type = "mcp_server_down"
	MCPServerReachable   Type = "mcp_server_reachable"
	MCPServerUnreachable Type = "mcp_server_unreachable"
	MCPToolEnabled       Type = "mcp_tool_enabled"
	MCPToolDisabled      Type = "mcp_tool_disabled"

	// Tool chaining lifecycle events.
	ToolChainStart          Type = "tool_chain_start"
	ToolChainIterationStart Type = "tool_chain_iteration_start"
	ToolChainIterationEnd   Type = "tool_chain_iteration_end"
	ToolChainEnd            Type = "tool_chain_end"
	ToolChainLimitReached   Type = "tool_chain_limit_reached"
	ToolChainError          Type = "tool_chain_error"
)

// Event is a single notification delivered to subscribers.
//
// Events are immutable once published: subscribers must not mutate Data.
// The shape of Data depends on Type; see the payload documentation on the
// publishing site (providers, the tool executor, the chain coordinator).
type Event struct {
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data"`
	Provider  string         `json:"provider"`
	RequestID string         `json:"requestId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscriber reacts to events it declared interest in.
//
// SubscribedEvents returns the finite set of event types the subscriber
// wants; it is consulted on every publish, so implementations should return
// a stable, cheap value. OnEvent side effects must stay within the
// subscriber's own state.
type Subscriber interface {
	SubscribedEvents() []Type
	OnEvent(Event)
}
