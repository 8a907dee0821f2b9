// Package provider implements the LLM backend abstraction.
//
// # Architecture
//
// Each backend (Ollama, OpenAI) implements the Provider interface and owns
// an event.Publisher. Streaming output is not returned to the caller chunk
// by chunk; instead a model turn publishes a sequence of events:
//
//	role -> content* -> llm_tool_call_request* -> usage? -> finish
//
// Subscribers such as the terminal renderer, the tool-call dispatcher, and
// usage trackers observe these events independently. StreamChatResponse
// additionally returns the assembled StreamResult so callers can append the
// turn to conversation history without re-deriving it from events.
//
// # Backends
//
// Both backends ride on langchaingo's chat completion clients:
//   - Ollama: llms/ollama against a configurable server URL
//   - OpenAI: llms/openai with optional base URL override for compatible
//     gateways
//
// Tool calls from backends that omit call ids (Ollama) are assigned
// generated ids so downstream deduplication and result pairing work
// uniformly.
//
// # Registry
//
// The Registry maps provider ids to factories and lazily instantiates
// providers from settings. Registering a duplicate id is an error; the
// active provider follows Settings.LLM.Provider.
//
// # Errors
//
// Failures during a model turn are both published as error events (so the
// UI can react) and returned to the caller (so orchestration can abort or
// retry).
package provider
