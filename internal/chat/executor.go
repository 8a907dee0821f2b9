package chat

import (
	"context"
	"encoding/json"

	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
	"github.com/kozo2/Hatchling/internal/provider"
)

// ToolInvoker runs a named tool with JSON arguments. *mcp.Client satisfies it.
type ToolInvoker interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Executor runs tool calls against an invoker and publishes the dispatch
// lifecycle: mcp_tool_call_dispatched before the call, then either
// mcp_tool_call_result or mcp_tool_call_error.
type Executor struct {
	invoker   ToolInvoker
	publisher *event.Publisher
}

func NewExecutor(invoker ToolInvoker, publisher *event.Publisher) *Executor {
	return &Executor{invoker: invoker, publisher: publisher}
}

// Execute runs a single tool call. The returned ToolResult always carries
// the call so the caller can build a tool result message from it; execution
// failures are recorded in Err rather than returned, since a failed tool
// call is still an answer the model should see.
func (e *Executor) Execute(ctx context.Context, call provider.ToolCall) provider.ToolResult {
	e.publish(event.MCPToolCallDispatched, map[string]any{
		"tool_call_id": call.ID,
		"name":         call.Name,
		"arguments":    marshalArgs(call.Arguments),
	})

	// Models sometimes hallucinate tool calls even when no tools were
	// offered; without a backend the call fails like any other tool error.
	if e.invoker == nil {
		const msg = "no tool backend connected"
		e.publish(event.MCPToolCallError, map[string]any{
			"tool_call_id": call.ID,
			"name":         call.Name,
			"error":        msg,
		})
		return provider.ToolResult{Call: call, Err: msg}
	}

	content, err := e.invoker.ExecuteTool(ctx, call.Name, call.Arguments)
	if err != nil {
		logging.Warn().Err(err).Str("tool", call.Name).Str("toolCallId", call.ID).Msg("tool call failed")
		e.publish(event.MCPToolCallError, map[string]any{
			"tool_call_id": call.ID,
			"name":         call.Name,
			"error":        err.Error(),
		})
		return provider.ToolResult{Call: call, Err: err.Error()}
	}

	e.publish(event.MCPToolCallResult, map[string]any{
		"tool_call_id": call.ID,
		"name":         call.Name,
		"content":      content,
	})
	return provider.ToolResult{Call: call, Content: content}
}

// ExecuteAll runs calls in order and returns a result per call, preserving
// order. A failing call does not stop the rest.
func (e *Executor) ExecuteAll(ctx context.Context, calls []provider.ToolCall) []provider.ToolResult {
	results := make([]provider.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Execute(ctx, call))
	}
	return results
}

func (e *Executor) publish(t event.Type, data map[string]any) {
	if e.publisher != nil {
		e.publisher.Publish(t, data)
	}
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
