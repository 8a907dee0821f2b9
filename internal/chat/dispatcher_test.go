package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/provider"
)

func callEvent(id, name, args string) event.Event {
	return event.Event{
		Type: event.LLMToolCallRequest,
		Data: map[string]any{
			"id": id,
			"function": map[string]any{
				"name":      name,
				"arguments": args,
			},
		},
	}
}

func TestDispatcher_QueuesInArrivalOrder(t *testing.T) {
	d := NewDispatcher(newFakeProvider())

	d.OnEvent(callEvent("call_1", "calculator_add", `{"a":1,"b":2}`))
	d.OnEvent(callEvent("call_2", "calculator_multiply", `{"a":3,"b":4}`))

	calls := d.Drain()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "calculator_add", calls[0].Name)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, calls[0].Arguments)
	assert.Equal(t, "call_2", calls[1].ID)

	assert.Empty(t, d.Drain())
}

func TestDispatcher_DeduplicatesByCallID(t *testing.T) {
	d := NewDispatcher(newFakeProvider())

	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	require.Len(t, d.Drain(), 1)

	// still deduped after a drain
	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	assert.Empty(t, d.Drain())
}

func TestDispatcher_ResetForgetsSeenCalls(t *testing.T) {
	d := NewDispatcher(newFakeProvider())

	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	d.Reset()
	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	assert.Len(t, d.Drain(), 1)
}

func TestDispatcher_DropsUnparseableRequests(t *testing.T) {
	d := NewDispatcher(newFakeProvider())

	d.OnEvent(event.Event{Type: event.LLMToolCallRequest, Data: map[string]any{"id": "call_1"}})
	assert.Empty(t, d.Drain())
}

func TestDispatcher_NilParserIgnoresEvents(t *testing.T) {
	d := NewDispatcher(nil)

	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	assert.Empty(t, d.Drain())

	d.SetParser(newFakeProvider())
	d.OnEvent(callEvent("call_1", "calculator_add", `{}`))
	assert.Len(t, d.Drain(), 1)
}

func TestDispatcher_SubscribesToToolCallRequests(t *testing.T) {
	d := NewDispatcher(newFakeProvider())
	assert.Equal(t, []event.Type{event.LLMToolCallRequest}, d.SubscribedEvents())
}

func TestDispatcher_ReceivesFromPublisher(t *testing.T) {
	prov := newFakeProvider()
	d := NewDispatcher(prov)
	prov.Publisher().Subscribe(d)

	prov.Publisher().Publish(event.LLMToolCallRequest, map[string]any{
		"id": "call_1",
		"function": map[string]any{
			"name":      "calculator_add",
			"arguments": `{"a":5,"b":7}`,
		},
	})

	calls := d.Drain()
	require.Len(t, calls, 1)
	assert.Equal(t, provider.ToolCall{
		ID:        "call_1",
		Name:      "calculator_add",
		Arguments: map[string]any{"a": float64(5), "b": float64(7)},
	}, calls[0])
}
