package chat

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/kozo2/Hatchling/internal/config"
	"github.com/kozo2/Hatchling/internal/event"
	"github.com/kozo2/Hatchling/internal/logging"
	"github.com/kozo2/Hatchling/internal/provider"
)

// Cause explains how a tool chain ended.
type Cause string

const (
	CauseCompleted    Cause = "completed"
	CauseLimitReached Cause = "limit_reached"
	CauseError        Cause = "error"
)

// limitNote is appended as a system message for the forced final turn once
// the chain hits its iteration or time limit.
const limitNote = "You have reached the tool call limit. Provide your best final answer with the information gathered so far."

// ChainResult is the outcome of one user turn, including any tool chaining.
type ChainResult struct {
	FinalContent string
	Iterations   int
	Cause        Cause
	Elapsed      time.Duration
}

// Coordinator drives a single conversation turn end to end: it streams the
// model response, executes any requested tool calls, feeds the results back,
// and repeats until the model stops calling tools or a limit is hit.
type Coordinator struct {
	provider   provider.Provider
	dispatcher *Dispatcher
	executor   *Executor
	history    *History
	settings   config.ToolCallingSettings
}

func NewCoordinator(prov provider.Provider, dispatcher *Dispatcher, executor *Executor, history *History, settings config.ToolCallingSettings) *Coordinator {
	return &Coordinator{
		provider:   prov,
		dispatcher: dispatcher,
		executor:   executor,
		history:    history,
		settings:   settings,
	}
}

// Run executes one turn. The user message is expected to already be in the
// history. Tools, when non-empty, are offered to the model on every turn
// except the forced final one after a limit.
//
// No chain events are published when the initial response carries no tool
// calls; a plain answer stays a plain answer on the bus.
func (c *Coordinator) Run(ctx context.Context, tools []provider.ToolDefinition) (*ChainResult, error) {
	pub := c.provider.Publisher()
	started := time.Now()

	// The dedupe record is scoped to this turn: reset on entry and exit so
	// drained ids do not accumulate across the session.
	c.dispatcher.Reset()
	defer c.dispatcher.Reset()

	result, err := c.streamWithRetry(ctx, tools)
	if err != nil {
		return nil, err
	}

	calls := c.dispatcher.Drain()
	if len(calls) == 0 {
		c.appendAssistant(result.Content)
		return &ChainResult{
			FinalContent: result.Content,
			Cause:        CauseCompleted,
			Elapsed:      time.Since(started),
		}, nil
	}

	chainID := ulid.Make().String()
	maxIterations := c.settings.MaxIterations
	if maxIterations <= 0 {
		maxIterations = config.DefaultMaxIterations
	}
	maxTime := c.settings.MaxWorkingTime()

	pub.Publish(event.ToolChainStart, map[string]any{
		"tool_chain_id":  chainID,
		"max_iterations": maxIterations,
	})

	retry := newRetryBackoff(ctx)
	iteration := 0
	for {
		iteration++
		pub.Publish(event.ToolChainIterationStart, map[string]any{
			"tool_chain_id": chainID,
			"iteration":     iteration,
		})

		c.history.Append(c.provider.AssistantToolCallMessage(result.Content, calls))
		for _, res := range c.executor.ExecuteAll(ctx, calls) {
			c.history.Append(c.provider.ToolResultMessage(res))
		}

		// An iteration ends only once its follow-up model turn has streamed,
		// so the turn's events fall inside the iteration they belong to.
		elapsed := time.Since(started)
		limited := iteration >= maxIterations || (maxTime > 0 && elapsed >= maxTime)
		if limited {
			pub.Publish(event.ToolChainLimitReached, map[string]any{
				"tool_chain_id": chainID,
				"iterations":    iteration,
				"elapsed_ms":    elapsed.Milliseconds(),
			})
			final, err := c.finalTurn(ctx)
			if err != nil {
				c.publishChainError(chainID, iteration, err)
				return nil, err
			}
			c.publishIterationEnd(chainID, iteration, len(calls))
			pub.Publish(event.ToolChainEnd, map[string]any{
				"tool_chain_id": chainID,
				"iterations":    iteration,
				"cause":         string(CauseLimitReached),
			})
			c.appendAssistant(final.Content)
			return &ChainResult{
				FinalContent: final.Content,
				Iterations:   iteration,
				Cause:        CauseLimitReached,
				Elapsed:      time.Since(started),
			}, nil
		}

		result, err = c.streamWithRetryUsing(ctx, tools, retry)
		if err != nil {
			c.publishChainError(chainID, iteration, err)
			return nil, err
		}
		retry.Reset()
		c.publishIterationEnd(chainID, iteration, len(calls))

		calls = c.dispatcher.Drain()
		if len(calls) == 0 {
			pub.Publish(event.ToolChainEnd, map[string]any{
				"tool_chain_id": chainID,
				"iterations":    iteration,
				"cause":         string(CauseCompleted),
			})
			c.appendAssistant(result.Content)
			return &ChainResult{
				FinalContent: result.Content,
				Iterations:   iteration,
				Cause:        CauseCompleted,
				Elapsed:      time.Since(started),
			}, nil
		}
	}
}

func (c *Coordinator) publishIterationEnd(chainID string, iteration, toolCalls int) {
	c.provider.Publisher().Publish(event.ToolChainIterationEnd, map[string]any{
		"tool_chain_id": chainID,
		"iteration":     iteration,
		"tool_calls":    toolCalls,
	})
}

// publishChainError closes out a started chain on an orchestration failure:
// the error event first, then the end event so observers always see a chain
// terminate.
func (c *Coordinator) publishChainError(chainID string, iteration int, err error) {
	pub := c.provider.Publisher()
	pub.Publish(event.ToolChainError, map[string]any{
		"tool_chain_id": chainID,
		"error":         err.Error(),
	})
	pub.Publish(event.ToolChainEnd, map[string]any{
		"tool_chain_id": chainID,
		"iterations":    iteration,
		"cause":         string(CauseError),
	})
}

// finalTurn asks for a plain answer without offering tools, with the limit
// note appended so the model knows why the tools went away.
func (c *Coordinator) finalTurn(ctx context.Context) (*provider.StreamResult, error) {
	messages := c.history.Snapshot()
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: limitNote})
	payload := c.provider.PrepareChatPayload(messages)
	result, err := c.provider.StreamChatResponse(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.dispatcher.Drain() // the model was given no tools; drop anything it hallucinated
	return result, nil
}

func (c *Coordinator) streamWithRetry(ctx context.Context, tools []provider.ToolDefinition) (*provider.StreamResult, error) {
	return c.streamWithRetryUsing(ctx, tools, newRetryBackoff(ctx))
}

func (c *Coordinator) streamWithRetryUsing(ctx context.Context, tools []provider.ToolDefinition, retry backoff.BackOff) (*provider.StreamResult, error) {
	payload := c.provider.PrepareChatPayload(c.history.Snapshot())
	if len(tools) > 0 {
		c.provider.AddToolsToPayload(payload, tools)
	}

	var lastErr error
	for {
		result, err := c.provider.StreamChatResponse(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return nil, lastErr
		}
		logging.Warn().Err(err).Dur("wait", wait).Msg("stream failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Coordinator) appendAssistant(content string) {
	if content != "" {
		c.history.AppendAssistant(content)
	}
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}
