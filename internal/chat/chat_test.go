package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/provider"
)

// scriptedTurn is one model response the fake provider plays back.
type scriptedTurn struct {
	content string
	calls   []provider.ToolCall
	err     error
}

// fakeProvider plays scripted turns and publishes the same event sequence a
// real backend would: role, content, tool call requests, finish.
type fakeProvider struct {
	pub      *event.Publisher
	turns    []scriptedTurn
	next     int
	payloads []*provider.ChatPayload
}

func newFakeProvider(turns ...scriptedTurn) *fakeProvider {
	f := &fakeProvider{turns: turns}
	f.pub = event.NewPublisher("fake")
	return f
}

func (f *fakeProvider) ID() string                            { return "fake" }
func (f *fakeProvider) Name() string                          { return "Fake" }
func (f *fakeProvider) Publisher() *event.Publisher           { return f.pub }
func (f *fakeProvider) Initialize(ctx context.Context) error  { return nil }
func (f *fakeProvider) Close() error                          { return nil }
func (f *fakeProvider) CheckHealth(ctx context.Context) error { return nil }

func (f *fakeProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fake-model"}, nil
}

func (f *fakeProvider) PrepareChatPayload(messages []provider.Message) *provider.ChatPayload {
	return &provider.ChatPayload{Model: "fake-model", Messages: messages}
}

func (f *fakeProvider) AddToolsToPayload(payload *provider.ChatPayload, tools []provider.ToolDefinition) {
	payload.Tools = tools
}

func (f *fakeProvider) StreamChatResponse(ctx context.Context, payload *provider.ChatPayload) (*provider.StreamResult, error) {
	f.payloads = append(f.payloads, payload)
	if f.next >= len(f.turns) {
		return nil, fmt.Errorf("no scripted turn %d", f.next)
	}
	turn := f.turns[f.next]
	f.next++
	if turn.err != nil {
		return nil, turn.err
	}

	f.pub.Publish(event.Role, map[string]any{"role": provider.RoleAssistant})
	if turn.content != "" {
		f.pub.Publish(event.Content, map[string]any{"content": turn.content})
	}
	for _, call := range turn.calls {
		args, _ := json.Marshal(call.Arguments)
		f.pub.Publish(event.LLMToolCallRequest, map[string]any{
			"id": call.ID,
			"function": map[string]any{
				"name":      call.Name,
				"arguments": string(args),
			},
		})
	}
	finish := "stop"
	if len(turn.calls) > 0 {
		finish = "tool_calls"
	}
	f.pub.Publish(event.Finish, map[string]any{"finish_reason": finish})
	return &provider.StreamResult{Content: turn.content, ToolCalls: turn.calls, FinishReason: finish}, nil
}

func (f *fakeProvider) ParseToolCallRequest(ev event.Event) (provider.ToolCall, error) {
	var call provider.ToolCall
	call.ID, _ = ev.Data["id"].(string)
	fn, ok := ev.Data["function"].(map[string]any)
	if !ok {
		return call, fmt.Errorf("missing function object")
	}
	call.Name, _ = fn["name"].(string)
	if raw, ok := fn["arguments"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &call.Arguments); err != nil {
			return call, err
		}
	}
	return call, nil
}

func (f *fakeProvider) ToolResultMessage(result provider.ToolResult) provider.Message {
	content := result.Content
	if result.Err != "" {
		content = "Error: " + result.Err
	}
	return provider.Message{
		Role:       provider.RoleTool,
		Content:    content,
		ToolCallID: result.Call.ID,
		Name:       result.Call.Name,
	}
}

func (f *fakeProvider) AssistantToolCallMessage(content string, calls []provider.ToolCall) provider.Message {
	return provider.Message{Role: provider.RoleAssistant, Content: content, ToolCalls: calls}
}

// fakeInvoker answers tool calls from a canned map; missing names error.
type fakeInvoker struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{answers: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeInvoker) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	if answer, ok := f.answers[name]; ok {
		return answer, nil
	}
	return "", fmt.Errorf("unknown tool %q", name)
}

// recorder captures published events for assertions.
type recorder struct {
	mu     sync.Mutex
	types  []event.Type
	events []event.Event
}

func newRecorder(types ...event.Type) *recorder {
	return &recorder{types: types}
}

func (r *recorder) SubscribedEvents() []event.Type { return r.types }

func (r *recorder) OnEvent(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) typeSequence() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var chainEventTypes = []event.Type{
	event.ToolChainStart,
	event.ToolChainIterationStart,
	event.ToolChainIterationEnd,
	event.ToolChainEnd,
	event.ToolChainLimitReached,
	event.ToolChainError,
	event.MCPToolCallDispatched,
	event.MCPToolCallResult,
	event.MCPToolCallError,
}
