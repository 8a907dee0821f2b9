package event

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kozo2/Hatchling/internal/logging"
)

// FuncSubscriber adapts a plain function into a Subscriber.
type FuncSubscriber struct {
	types []Type
	fn    func(Event)
}

// NewFuncSubscriber wraps fn as a subscriber interested in the given types.
func NewFuncSubscriber(fn func(Event), types ...Type) *FuncSubscriber {
	return &FuncSubscriber{types: types, fn: fn}
}

func (s *FuncSubscriber) SubscribedEvents() []Type { return s.types }

func (s *FuncSubscriber) OnEvent(ev Event) { s.fn(ev) }

// ContentPrinter writes streamed content to a writer as it arrives.
type ContentPrinter struct {
	w           io.Writer
	includeRole bool
	printedRole bool
}

// NewContentPrinter creates a printer writing to w. When includeRole is
// set, the first role event is printed as a "[role] " prefix.
func NewContentPrinter(w io.Writer, includeRole bool) *ContentPrinter {
	return &ContentPrinter{w: w, includeRole: includeRole}
}

func (s *ContentPrinter) SubscribedEvents() []Type {
	if s.includeRole {
		return []Type{Content, Role}
	}
	return []Type{Content}
}

func (s *ContentPrinter) OnEvent(ev Event) {
	switch ev.Type {
	case Content:
		if text, ok := ev.Data["content"].(string); ok {
			fmt.Fprint(s.w, text)
		}
	case Role:
		if role, ok := ev.Data["role"].(string); ok && !s.printedRole {
			fmt.Fprintf(s.w, "[%s] ", role)
			s.printedRole = true
		}
	}
}

// Reset clears the printed-role marker for the next turn.
func (s *ContentPrinter) Reset() { s.printedRole = false }

// ContentAccumulator collects streamed content deltas into a full response.
type ContentAccumulator struct {
	mu sync.Mutex
	sb strings.Builder
}

// NewContentAccumulator creates an empty accumulator.
func NewContentAccumulator() *ContentAccumulator { return &ContentAccumulator{} }

func (s *ContentAccumulator) SubscribedEvents() []Type { return []Type{Content} }

func (s *ContentAccumulator) OnEvent(ev Event) {
	text, ok := ev.Data["content"].(string)
	if !ok {
		return
	}
	s.mu.Lock()
	s.sb.WriteString(text)
	s.mu.Unlock()
}

// Text returns the content accumulated so far.
func (s *ContentAccumulator) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sb.String()
}

// Reset discards accumulated content for the next turn.
func (s *ContentAccumulator) Reset() {
	s.mu.Lock()
	s.sb.Reset()
	s.mu.Unlock()
}

// UsageStats tracks token usage and generation timing across a turn.
type UsageStats struct {
	mu sync.Mutex

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	start time.Time
	end   time.Time
}

// NewUsageStats creates an empty usage tracker.
func NewUsageStats() *UsageStats { return &UsageStats{} }

func (s *UsageStats) SubscribedEvents() []Type { return []Type{Content, Usage, Finish} }

func (s *UsageStats) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case Content:
		if s.start.IsZero() {
			s.start = ev.Timestamp
		}
	case Usage:
		usage, ok := ev.Data["usage"].(map[string]any)
		if !ok {
			return
		}
		s.PromptTokens = toInt(usage["prompt_tokens"])
		s.CompletionTokens = toInt(usage["completion_tokens"])
		s.TotalTokens = toInt(usage["total_tokens"])
		s.end = ev.Timestamp
	case Finish:
		if !s.start.IsZero() && s.end.IsZero() {
			s.end = ev.Timestamp
		}
	}
}

// Report formats the collected statistics, including the generation rate
// when timing information is available.
func (s *UsageStats) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "prompt tokens: %d\n", s.PromptTokens)
	fmt.Fprintf(&sb, "completion tokens: %d\n", s.CompletionTokens)
	fmt.Fprintf(&sb, "total tokens: %d\n", s.TotalTokens)
	if !s.start.IsZero() && s.end.After(s.start) && s.CompletionTokens > 0 {
		d := s.end.Sub(s.start)
		fmt.Fprintf(&sb, "generation time: %.2fs (%.2f tokens/s)\n",
			d.Seconds(), float64(s.CompletionTokens)/d.Seconds())
	}
	return sb.String()
}

// Reset clears collected statistics.
func (s *UsageStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PromptTokens = 0
	s.CompletionTokens = 0
	s.TotalTokens = 0
	s.start = time.Time{}
	s.end = time.Time{}
}

// ErrorHandler records error events and logs them.
type ErrorHandler struct {
	mu   sync.Mutex
	last string
}

// NewErrorHandler creates an error handler subscriber.
func NewErrorHandler() *ErrorHandler { return &ErrorHandler{} }

func (s *ErrorHandler) SubscribedEvents() []Type { return []Type{Error} }

func (s *ErrorHandler) OnEvent(ev Event) {
	msg := ErrorMessage(ev)
	s.mu.Lock()
	s.last = msg
	s.mu.Unlock()
	logging.Error().
		Str("provider", ev.Provider).
		Str("requestId", ev.RequestID).
		Msg(msg)
}

// LastError returns the message of the most recent error event, or "".
func (s *ErrorHandler) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ErrorMessage extracts the human-readable message from an error event's
// {"error": {"message": ..., "type": ...}} payload.
func ErrorMessage(ev Event) string {
	if inner, ok := ev.Data["error"].(map[string]any); ok {
		if msg, ok := inner["message"].(string); ok {
			return msg
		}
	}
	return "unknown error"
}

// toInt coerces the numeric types that survive JSON round-trips.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
