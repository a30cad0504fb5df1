// Package agentloop implements a streaming, tool-calling agent loop on
// top of the llmstream client.
//
// A Loop owns one conversation. Each submitted input runs a cycle of
// rounds: stream the model's response, reassemble any tool calls from
// the chunked deltas with a StreamAccumulator, dispatch them through the
// ToolRegistry against an ExecutionEnvironment, fold the results back
// into the conversation, and go around again until the model answers in
// plain text or a limit fires. Progress is reported on a per-input event
// channel.
//
// A SubagentSupervisor spawns detached worker loops with fresh
// conversations and a restricted tool set; their output goes to the log,
// not to the parent.
package agentloop
