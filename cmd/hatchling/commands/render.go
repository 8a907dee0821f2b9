package commands

import (
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
)

// renderer turns the event stream into terminal output: assistant text as
// it arrives, dim tool-call notices, and colored error and limit notes.
type renderer struct {
	mu      sync.Mutex
	w       io.Writer
	printed bool

	toolColor *color.Color
	errColor  *color.Color
	warnColor *color.Color
	roleColor *color.Color
}

func newRenderer(w io.Writer, ui config.UISettings) *renderer {
	if ui.Colors != nil {
		color.NoColor = !*ui.Colors
	}
	return &renderer{
		w:         w,
		toolColor: color.New(color.Faint),
		errColor:  color.New(color.FgRed),
		warnColor: color.New(color.FgYellow),
		roleColor: color.New(color.FgCyan, color.Bold),
	}
}

func (r *renderer) SubscribedEvents() []event.Type {
	return []event.Type{
		event.Role,
		event.Content,
		event.Error,
		event.MCPToolCallDispatched,
		event.MCPToolCallResult,
		event.MCPToolCallError,
		event.ToolChainLimitReached,
		event.MCPServerUnreachable,
		event.MCPServerReachable,
	}
}

func (r *renderer) OnEvent(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case event.Role:
		if !r.printed {
			r.roleColor.Fprint(r.w, "assistant> ")
			r.printed = true
		}
	case event.Content:
		if chunk, ok := ev.Data["content"].(string); ok {
			fmt.Fprint(r.w, chunk)
		}
	case event.Error:
		fmt.Fprintln(r.w)
		r.errColor.Fprintf(r.w, "error: %s\n", event.ErrorMessage(ev))
	case event.MCPToolCallDispatched:
		name, _ := ev.Data["name"].(string)
		args, _ := ev.Data["arguments"].(string)
		fmt.Fprintln(r.w)
		r.toolColor.Fprintf(r.w, "  → %s %s\n", name, args)
	case event.MCPToolCallResult:
		content, _ := ev.Data["content"].(string)
		r.toolColor.Fprintf(r.w, "  ← %s\n", truncate(content, 200))
	case event.MCPToolCallError:
		msg, _ := ev.Data["error"].(string)
		r.errColor.Fprintf(r.w, "  ✗ %s\n", msg)
	case event.ToolChainLimitReached:
		r.warnColor.Fprintln(r.w, "  tool call limit reached, asking for a final answer")
	case event.MCPServerUnreachable:
		name, _ := ev.Data["name"].(string)
		r.warnColor.Fprintf(r.w, "MCP server %s is unreachable\n", name)
	case event.MCPServerReachable:
		name, _ := ev.Data["name"].(string)
		r.toolColor.Fprintf(r.w, "MCP server %s is back\n", name)
	}
}

// Flush ends the assistant line and resets for the next turn.
func (r *renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.printed {
		fmt.Fprintln(r.w)
		r.printed = false
	}
}

// truncate cuts s to at most n runes, never mid-rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
