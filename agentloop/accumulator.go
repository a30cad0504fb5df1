package agentloop

import (
	"fmt"
	"strings"
	"time"

	"github.com/strandway/relay/llmstream"
)

// toolCallState is the in-progress reconstruction of one streamed call.
type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

// CompletedToolCall is a fully reassembled tool call, ready for dispatch.
// Arguments is the raw JSON string exactly as concatenated from the
// stream; parsing is the dispatcher's problem.
type CompletedToolCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamAccumulator reassembles a response from ordered stream chunks:
// text is forwarded immediately through emit, tool calls are rebuilt
// fragment by fragment keyed on the wire index. One accumulator serves
// exactly one stream; a retried request gets a fresh one.
type StreamAccumulator struct {
	content strings.Builder
	calls   map[int]*toolCallState
	order   []int
}

// NewStreamAccumulator creates an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{
		calls: make(map[int]*toolCallState),
	}
}

// Ingest folds one chunk into the accumulated state. Text deltas are
// forwarded through emit as they arrive; tool call fragments update
// per-index state and produce partial-argument events so the host can
// render arguments while they are still streaming. emit may be nil.
func (a *StreamAccumulator) Ingest(chunk llmstream.Chunk, emit func(AgentEvent)) {
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			a.content.WriteString(choice.Delta.Content)
			if emit != nil {
				emit(textEvent(choice.Delta.Content))
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			state, ok := a.calls[tc.Index]
			if !ok {
				state = &toolCallState{}
				a.calls[tc.Index] = state
				a.order = append(a.order, tc.Index)
			}

			// Identity fields may land on any fragment; a later
			// non-empty value replaces an earlier one.
			if tc.ID != "" {
				state.id = tc.ID
			}
			if tc.Function.Name != "" {
				state.name = tc.Function.Name
			}

			if tc.Function.Arguments != "" {
				state.args.WriteString(tc.Function.Arguments)
				if emit != nil {
					emit(AgentEvent{
						Kind:      EventPartialArgs,
						Timestamp: time.Now(),
						CallIndex: tc.Index,
						CallID:    state.id,
						ToolName:  state.name,
						Arguments: state.args.String(),
					})
				}
			}
		}
	}
}

// Content returns the full assistant text accumulated so far.
func (a *StreamAccumulator) Content() string {
	return a.content.String()
}

// HasToolCalls reports whether any tool call fragments arrived.
func (a *StreamAccumulator) HasToolCalls() bool {
	return len(a.calls) > 0
}

// Calls finalizes the accumulated tool calls in the order their indices
// were first seen. Calls that never received an ID get a synthetic one
// derived from the index, so every dispatched call is addressable.
func (a *StreamAccumulator) Calls() []CompletedToolCall {
	result := make([]CompletedToolCall, 0, len(a.order))
	for _, idx := range a.order {
		state := a.calls[idx]
		id := state.id
		if id == "" {
			id = fmt.Sprintf("call_%d", idx)
		}
		result = append(result, CompletedToolCall{
			Index:     idx,
			ID:        id,
			Name:      state.name,
			Arguments: state.args.String(),
		})
	}
	return result
}
