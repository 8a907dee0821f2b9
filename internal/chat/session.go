package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
	"github.com/kozo2/Hatchling/internal/mcp"
	"github.com/kozo2/Hatchling/internal/provider"
	"github.com/kozo2/Hatchling/internal/storage"
)

const defaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help answer the user's question, and answer directly when they do not."

// Session owns one interactive conversation: the active provider, the MCP
// client, the shared history, and the transcript on disk. It re-wires the
// event plumbing whenever the provider or model changes.
type Session struct {
	settings   *config.Settings
	registry   *provider.Registry
	mcpClient  *mcp.Client
	store      *storage.Storage
	history    *History
	dispatcher *Dispatcher
	executor   *Executor
	provider   provider.Provider
	transcript *storage.Transcript

	// subscribers the UI attached; re-subscribed on provider switches.
	subscribers []event.Subscriber
}

// NewSession builds a session around the configured provider. The provider
// is resolved and initialized lazily on first use so the REPL can start even
// when the backend is down.
func NewSession(settings *config.Settings, registry *provider.Registry, mcpClient *mcp.Client, store *storage.Storage) *Session {
	return &Session{
		settings:   settings,
		registry:   registry,
		mcpClient:  mcpClient,
		store:      store,
		history:    NewHistory(defaultSystemPrompt),
		dispatcher: NewDispatcher(nil),
	}
}

// Subscribe attaches a subscriber to the active provider's publisher and
// keeps it attached across provider switches.
func (s *Session) Subscribe(sub event.Subscriber) {
	s.subscribers = append(s.subscribers, sub)
	if s.provider != nil {
		s.provider.Publisher().Subscribe(sub)
	}
}

// Provider returns the active provider, resolving it on first call.
func (s *Session) Provider(ctx context.Context) (provider.Provider, error) {
	if s.provider != nil {
		return s.provider, nil
	}
	prov, err := s.registry.Current()
	if err != nil {
		return nil, err
	}
	if err := s.attachProvider(ctx, prov); err != nil {
		return nil, err
	}
	return s.provider, nil
}

func (s *Session) attachProvider(ctx context.Context, prov provider.Provider) error {
	if err := prov.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing provider %s: %w", prov.ID(), err)
	}
	pub := prov.Publisher()
	pub.Subscribe(s.dispatcher)
	for _, sub := range s.subscribers {
		pub.Subscribe(sub)
	}
	s.dispatcher.SetParser(prov)
	// Assign through a typed nil check: a nil *mcp.Client boxed into the
	// interface would pass the executor's nil guard and blow up on use.
	var invoker ToolInvoker
	if s.mcpClient != nil {
		invoker = s.mcpClient
		s.mcpClient.SetPublisher(pub)
	}
	s.executor = NewExecutor(invoker, pub)
	s.provider = prov
	return nil
}

// SendMessage runs one user turn: append the message, stream the response,
// chain tool calls as needed, and persist the transcript.
func (s *Session) SendMessage(ctx context.Context, text string) (*ChainResult, error) {
	prov, err := s.Provider(ctx)
	if err != nil {
		return nil, err
	}
	prov.Publisher().SetRequestID(ulid.Make().String())

	s.history.AppendUser(text)
	lenBefore := s.history.Len()

	coordinator := NewCoordinator(prov, s.dispatcher, s.executor, s.history, s.settings.ToolCalling)
	result, err := coordinator.Run(ctx, s.toolDefinitions())
	if err != nil {
		// Keep history consistent: the turn failed, so the user message and
		// any partial tool exchange are rolled back together.
		s.history.Truncate(lenBefore - 1)
		return nil, err
	}

	s.persist(ctx)
	return result, nil
}

// toolDefinitions exposes the connected, enabled MCP tools to the model.
func (s *Session) toolDefinitions() []provider.ToolDefinition {
	if s.mcpClient == nil {
		return nil
	}
	tools := s.mcpClient.Tools()
	defs := make([]provider.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return defs
}

// SwitchProvider changes the active backend. The conversation history is
// kept; the event plumbing moves to the new provider's publisher.
func (s *Session) SwitchProvider(ctx context.Context, id string) error {
	prov, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if s.provider != nil && s.provider.ID() == id {
		return nil
	}
	if err := s.attachProvider(ctx, prov); err != nil {
		return err
	}
	s.settings.LLM.Provider = id
	s.transcript = nil // next save opens a transcript under the new backend
	return nil
}

// SetModel changes the model of the active backend. The provider instance
// is rebuilt so the new model takes effect.
func (s *Session) SetModel(ctx context.Context, model string) error {
	s.settings.LLM.Model = model
	id := s.settings.LLM.Provider
	s.registry.Reset(id)
	prov, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	s.provider = nil
	if err := s.attachProvider(ctx, prov); err != nil {
		return err
	}
	s.transcript = nil
	return nil
}

// Clear drops the conversation history and starts a fresh transcript.
func (s *Session) Clear() {
	s.history.Clear()
	s.dispatcher.Reset()
	s.transcript = nil
}

// History exposes the conversation for rendering.
func (s *Session) History() *History {
	return s.history
}

// persist writes the conversation to disk. Storage failures are logged, not
// fatal; losing a transcript should never kill the chat.
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	if s.transcript == nil {
		s.transcript = storage.NewTranscript(s.settings.LLM.Provider, s.settings.LLM.Model)
	}
	s.transcript.Model = s.settings.LLM.Model
	s.transcript.Messages = transcriptMessages(s.history.Messages())
	if s.transcript.Title == "" {
		s.transcript.Title = transcriptTitle(s.transcript.Messages)
	}
	if err := s.store.SaveTranscript(ctx, s.transcript); err != nil {
		logging.Warn().Err(err).Str("transcript", s.transcript.ID).Msg("failed to save transcript")
	}
}

func transcriptMessages(msgs []provider.Message) []storage.TranscriptMessage {
	out := make([]storage.TranscriptMessage, 0, len(msgs))
	now := time.Now()
	for _, m := range msgs {
		tm := storage.TranscriptMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Timestamp:  now,
		}
		if len(m.ToolCalls) > 0 {
			if raw, err := json.Marshal(m.ToolCalls); err == nil {
				tm.ToolCalls = raw
			}
		}
		out = append(out, tm)
	}
	return out
}

func transcriptTitle(msgs []storage.TranscriptMessage) string {
	for _, m := range msgs {
		if m.Role == provider.RoleUser && m.Content != "" {
			// Cut on a rune boundary so multibyte titles stay valid UTF-8.
			title := []rune(m.Content)
			if len(title) > 80 {
				title = title[:80]
			}
			return string(title)
		}
	}
	return ""
}

// Close releases the provider and MCP connections.
func (s *Session) Close() error {
	var firstErr error
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			firstErr = err
		}
	}
	if s.mcpClient != nil {
		if err := s.mcpClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
