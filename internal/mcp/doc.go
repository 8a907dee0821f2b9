// Package mcp provides the Model Context Protocol client used for tool
// calling.
//
// # Servers and Transports
//
// Servers come from configuration: a command array launches a stdio server
// as a subprocess, a URL connects over streamable HTTP with SSE fallback.
// Connections ride on the official MCP Go SDK.
//
// # Tool Naming
//
// Discovered tools are exposed under server-prefixed names
// ("calculator_add" for tool "add" on server "calculator") so tools from
// different servers never collide. The prefixed name is what the model
// sees and what ExecuteTool accepts; the client translates back to the
// server-side name on each call.
//
// # Lifecycle Events
//
// The client publishes events as servers and tools change state:
//
//	mcp_server_up / mcp_server_down       connect and removal
//	mcp_server_reachable / _unreachable   health sweep transitions
//	mcp_tool_enabled / mcp_tool_disabled  per-tool toggling
//
// Health sweeps ping each connected server; an unreachable server gets a
// bounded exponential-backoff reconnect attempt so transient restarts heal
// without operator action.
package mcp
