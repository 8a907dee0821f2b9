// Package chat coordinates a conversation turn across the provider, the
// event bus, and the MCP tool layer.
//
// A turn flows through four pieces. The Dispatcher subscribes to
// llm_tool_call_request events and queues parsed calls. The Executor runs
// queued calls against the MCP client, publishing the dispatched/result/
// error lifecycle for each. The Coordinator loops: stream a response,
// drain the dispatcher, execute, feed results back, until the model stops
// calling tools or the configured iteration/time limit forces a final
// answer. The Session wires these together with the history and transcript
// storage, and re-wires them when the user switches provider or model.
package chat
