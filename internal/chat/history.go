package chat

import (
	"sync"

	"github.com/kozo2/Hatchling/internal/provider"
)

// History is the ordered conversation record for one session. The system
// prompt is kept separate so it can be swapped without rewriting history.
type History struct {
	mu       sync.Mutex
	system   string
	messages []provider.Message
}

// NewHistory creates an empty history with the given system prompt.
func NewHistory(system string) *History {
	return &History{system: system}
}

// SetSystem replaces the system prompt for subsequent turns.
func (h *History) SetSystem(system string) {
	h.mu.Lock()
	h.system = system
	h.mu.Unlock()
}

// Append adds messages to the end of the history.
func (h *History) Append(msgs ...provider.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msgs...)
	h.mu.Unlock()
}

// AppendUser adds a user message.
func (h *History) AppendUser(content string) {
	h.Append(provider.Message{Role: provider.RoleUser, Content: content})
}

// AppendAssistant adds a plain assistant message.
func (h *History) AppendAssistant(content string) {
	h.Append(provider.Message{Role: provider.RoleAssistant, Content: content})
}

// Snapshot returns the full conversation, system prompt first.
func (h *History) Snapshot() []provider.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]provider.Message, 0, len(h.messages)+1)
	if h.system != "" {
		out = append(out, provider.Message{Role: provider.RoleSystem, Content: h.system})
	}
	out = append(out, h.messages...)
	return out
}

// Messages returns the conversation without the system prompt.
func (h *History) Messages() []provider.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]provider.Message(nil), h.messages...)
}

// Len returns the number of non-system messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Truncate cuts the conversation back to n non-system messages. A failed
// turn uses it to roll back partial tool exchanges.
func (h *History) Truncate(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(h.messages) {
		h.messages = h.messages[:n]
	}
}

// Clear drops the conversation, keeping the system prompt.
func (h *History) Clear() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}
