package chat

import (
	"sync"

	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
	"github.com/kozo2/Hatchling/internal/provider"
)

// CallParser extracts tool calls from request events. The active provider
// implements it.
type CallParser interface {
	ParseToolCallRequest(ev event.Event) (provider.ToolCall, error)
}

// Dispatcher collects tool-call requests as they stream in. It subscribes
// to llm_tool_call_request events, parses them through the active provider,
// and queues them in arrival order. Duplicate call ids are dropped so a
// re-published request can never execute twice; the record lives for one
// turn, the coordinator resets it between turns.
type Dispatcher struct {
	mu      sync.Mutex
	parser  CallParser
	seen    map[string]bool
	pending []provider.ToolCall
}

// NewDispatcher creates a dispatcher parsing with the given parser.
func NewDispatcher(parser CallParser) *Dispatcher {
	return &Dispatcher{
		parser: parser,
		seen:   make(map[string]bool),
	}
}

// SetParser swaps the parser when the active provider changes.
func (d *Dispatcher) SetParser(parser CallParser) {
	d.mu.Lock()
	d.parser = parser
	d.mu.Unlock()
}

func (d *Dispatcher) SubscribedEvents() []event.Type {
	return []event.Type{event.LLMToolCallRequest}
}

func (d *Dispatcher) OnEvent(ev event.Event) {
	d.mu.Lock()
	parser := d.parser
	d.mu.Unlock()
	if parser == nil {
		return
	}

	call, err := parser.ParseToolCallRequest(ev)
	if err != nil {
		logging.Warn().Err(err).Str("provider", ev.Provider).Msg("dropping unparseable tool call request")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[call.ID] {
		logging.Debug().Str("toolCallId", call.ID).Msg("duplicate tool call request ignored")
		return
	}
	d.seen[call.ID] = true
	d.pending = append(d.pending, call)
}

// Drain returns the queued calls in arrival order and clears the queue.
// The dedupe record is kept so drained calls stay unrepeatable within the
// current turn.
func (d *Dispatcher) Drain() []provider.ToolCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	calls := d.pending
	d.pending = nil
	return calls
}

// Reset clears both the queue and the dedupe record. Called at turn
// boundaries so the record cannot grow without bound.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.pending = nil
	d.seen = make(map[string]bool)
	d.mu.Unlock()
}
