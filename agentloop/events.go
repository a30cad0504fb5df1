package agentloop

import "time"

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventPartialArgs   EventKind = "partial_args"
	EventToolInvoked   EventKind = "tool_invoked"
	EventToolCompleted EventKind = "tool_completed"
	EventLoopWarning   EventKind = "loop_warning"
	EventRoundLimit    EventKind = "round_limit"
	EventError         EventKind = "error"
)

// AgentEvent is a typed event emitted by the agent loop as it streams,
// parses and dispatches. Which fields are set depends on Kind.
type AgentEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Text carries assistant text for text_delta and human-readable
	// detail for loop_warning, round_limit and error events.
	Text string `json:"text,omitempty"`

	// Tool call fields, set on partial_args, tool_invoked and
	// tool_completed events.
	CallIndex int    `json:"call_index,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`

	// Arguments holds the argument JSON assembled so far (partial_args)
	// or in full (tool_invoked, tool_completed).
	Arguments string `json:"arguments,omitempty"`

	// Result and IsError are set on tool_completed.
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

func textEvent(text string) AgentEvent {
	return AgentEvent{Kind: EventTextDelta, Timestamp: time.Now(), Text: text}
}

func errorEvent(text string) AgentEvent {
	return AgentEvent{Kind: EventError, Timestamp: time.Now(), Text: text}
}
