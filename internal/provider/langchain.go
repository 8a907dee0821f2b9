package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/tmc/langchaingo/llms"

	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
)

// langchainProvider implements the streaming and message plumbing shared by
// the langchaingo-backed backends. Concrete providers supply the client
// constructor and health check.
type langchainProvider struct {
	id    string
	name  string
	model string

	publisher *event.Publisher

	mu     sync.Mutex
	client llms.Model

	// newClient builds the backend client on Initialize.
	newClient func(ctx context.Context) (llms.Model, error)
	// checkHealth verifies backend reachability.
	checkHealth func(ctx context.Context) error
	// listModels queries the backend's model catalog.
	listModels func(ctx context.Context) ([]string, error)
}

func (p *langchainProvider) ID() string { return p.id }

func (p *langchainProvider) Name() string { return p.name }

func (p *langchainProvider) Publisher() *event.Publisher { return p.publisher }

func (p *langchainProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return fmt.Errorf("initialize %s: %w", p.id, err)
	}
	p.client = client
	logging.Info().Str("provider", p.id).Str("model", p.model).Msg("provider initialized")
	return nil
}

func (p *langchainProvider) Close() error {
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
	return p.publisher.Close()
}

func (p *langchainProvider) CheckHealth(ctx context.Context) error {
	return p.checkHealth(ctx)
}

func (p *langchainProvider) ListModels(ctx context.Context) ([]string, error) {
	if p.listModels == nil {
		return nil, fmt.Errorf("%s does not support model listing", p.id)
	}
	return p.listModels(ctx)
}

func (p *langchainProvider) PrepareChatPayload(messages []Message) *ChatPayload {
	return &ChatPayload{
		Model:    p.model,
		Messages: append([]Message(nil), messages...),
	}
}

func (p *langchainProvider) AddToolsToPayload(payload *ChatPayload, tools []ToolDefinition) {
	payload.Tools = append(payload.Tools, tools...)
}

func (p *langchainProvider) StreamChatResponse(ctx context.Context, payload *ChatPayload) (*StreamResult, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		err := fmt.Errorf("provider %s not initialized", p.id)
		p.publisher.Publish(event.Error, errorEventData("state", err))
		return nil, err
	}

	msgs, err := toLangchainMessages(payload.Messages)
	if err != nil {
		p.publisher.Publish(event.Error, errorEventData("payload", err))
		return nil, err
	}

	opts := []llms.CallOption{
		llms.WithModel(payload.Model),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) > 0 {
				p.publisher.Publish(event.Content, map[string]any{"content": string(chunk)})
			}
			return nil
		}),
	}
	if len(payload.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLangchainTools(payload.Tools)))
	}

	p.publisher.Publish(event.Role, map[string]any{"role": RoleAssistant})

	resp, err := client.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		p.publisher.Publish(event.Error, errorEventData("api", err))
		return nil, fmt.Errorf("%s chat: %w", p.id, err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%s chat: empty response", p.id)
		p.publisher.Publish(event.Error, errorEventData("api", err))
		return nil, err
	}

	choice := resp.Choices[0]
	result := &StreamResult{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
	}

	for _, tc := range choice.ToolCalls {
		call, err := fromLangchainToolCall(tc)
		if err != nil {
			logging.Warn().Str("provider", p.id).Err(err).Msg("skipping malformed tool call")
			continue
		}
		result.ToolCalls = append(result.ToolCalls, call)
		p.publisher.Publish(event.LLMToolCallRequest, toolCallEventData(call))
	}

	if usage := usageEventData(choice.GenerationInfo); usage != nil {
		p.publisher.Publish(event.Usage, usage)
	}
	p.publisher.Publish(event.Finish, map[string]any{"finish_reason": result.FinishReason})

	return result, nil
}

func (p *langchainProvider) ParseToolCallRequest(ev event.Event) (ToolCall, error) {
	if ev.Type != event.LLMToolCallRequest {
		return ToolCall{}, fmt.Errorf("not a tool call request event: %s", ev.Type)
	}
	return parseToolCallEventData(ev.Data)
}

func (p *langchainProvider) ToolResultMessage(result ToolResult) Message {
	content := result.Content
	if result.Err != "" {
		content = fmt.Sprintf("Error: %s", result.Err)
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: result.Call.ID,
		Name:       result.Call.Name,
	}
}

func (p *langchainProvider) AssistantToolCallMessage(content string, calls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: append([]ToolCall(nil), calls...),
	}
}

// toLangchainMessages converts conversation history to the langchaingo form.
func toLangchainMessages(messages []Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Arguments)
				if err != nil {
					return nil, fmt.Errorf("marshal tool call arguments: %w", err)
				}
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		default:
			return nil, fmt.Errorf("unknown message role %q", msg.Role)
		}
	}
	return out, nil
}

// toLangchainTools converts tool definitions to the langchaingo form.
func toLangchainTools(tools []ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, len(tools))
	for i, t := range tools {
		out[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// fromLangchainToolCall parses a model tool call, generating an id when the
// backend omits one (Ollama does).
func fromLangchainToolCall(tc llms.ToolCall) (ToolCall, error) {
	if tc.FunctionCall == nil {
		return ToolCall{}, fmt.Errorf("tool call without function")
	}
	call := ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name}
	if call.ID == "" {
		call.ID = "call_" + ulid.Make().String()
	}
	if tc.FunctionCall.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &call.Arguments); err != nil {
			return ToolCall{}, fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
		}
	}
	return call, nil
}

// usageEventData extracts token usage from generation info, nil when the
// backend reported none.
func usageEventData(info map[string]any) map[string]any {
	if info == nil {
		return nil
	}
	prompt := toInt(info["PromptTokens"])
	completion := toInt(info["CompletionTokens"])
	total := toInt(info["TotalTokens"])
	if total == 0 {
		total = prompt + completion
	}
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	return map[string]any{"usage": map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      total,
	}}
}

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
