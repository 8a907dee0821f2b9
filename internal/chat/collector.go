package chat

import (
	"sync"

	"github.com/kozo2/Hatchling/internal/event"
)

// CollectedResult is one completed tool call observed on the event bus.
type CollectedResult struct {
	ToolCallID string
	Name       string
	Content    string
	Err        string
}

// ResultCollector pairs mcp_tool_call_dispatched events with their
// result or error events, keeping dispatch order. It is a passive
// observer used by the UI and tests; the chain itself gets results
// directly from the executor.
type ResultCollector struct {
	mu      sync.Mutex
	order   []string
	results map[string]*CollectedResult
}

func NewResultCollector() *ResultCollector {
	return &ResultCollector{results: make(map[string]*CollectedResult)}
}

func (c *ResultCollector) SubscribedEvents() []event.Type {
	return []event.Type{
		event.MCPToolCallDispatched,
		event.MCPToolCallResult,
		event.MCPToolCallError,
	}
}

func (c *ResultCollector) OnEvent(ev event.Event) {
	id, _ := ev.Data["tool_call_id"].(string)
	if id == "" {
		return
	}
	name, _ := ev.Data["name"].(string)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case event.MCPToolCallDispatched:
		if _, ok := c.results[id]; ok {
			return
		}
		c.order = append(c.order, id)
		c.results[id] = &CollectedResult{ToolCallID: id, Name: name}
	case event.MCPToolCallResult:
		if r, ok := c.results[id]; ok {
			r.Content, _ = ev.Data["content"].(string)
		}
	case event.MCPToolCallError:
		if r, ok := c.results[id]; ok {
			r.Err, _ = ev.Data["error"].(string)
		}
	}
}

// Results returns completed and in-flight results in dispatch order.
func (c *ResultCollector) Results() []CollectedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CollectedResult, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.results[id])
	}
	return out
}

// Reset clears collected state between user turns.
func (c *ResultCollector) Reset() {
	c.mu.Lock()
	c.order = nil
	c.results = make(map[string]*CollectedResult)
	c.mu.Unlock()
}
