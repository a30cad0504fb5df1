package agentloop

import (
	"testing"

	"github.com/strandway/relay/llmstream"
)

func toolDelta(index int, id, name, args string) llmstream.Chunk {
	return llmstream.ToolCallChunk(llmstream.ToolCallDelta{
		Index:    index,
		ID:       id,
		Function: llmstream.FunctionDelta{Name: name, Arguments: args},
	})
}

func TestAccumulatorForwardsText(t *testing.T) {
	acc := NewStreamAccumulator()

	var forwarded []string
	emit := func(ev AgentEvent) {
		if ev.Kind == EventTextDelta {
			forwarded = append(forwarded, ev.Text)
		}
	}

	acc.Ingest(llmstream.TextChunk("Hel"), emit)
	acc.Ingest(llmstream.TextChunk("lo"), emit)

	if acc.Content() != "Hello" {
		t.Errorf("expected content %q, got %q", "Hello", acc.Content())
	}
	if len(forwarded) != 2 || forwarded[0] != "Hel" || forwarded[1] != "lo" {
		t.Errorf("expected each fragment forwarded as it arrived, got %v", forwarded)
	}
	if acc.HasToolCalls() {
		t.Error("expected no tool calls")
	}
}

func TestAccumulatorReassemblesArguments(t *testing.T) {
	acc := NewStreamAccumulator()

	acc.Ingest(toolDelta(0, "call_abc", "read_file", ""), nil)
	acc.Ingest(toolDelta(0, "", "", `{"path":`), nil)
	acc.Ingest(toolDelta(0, "", "", `"a.txt"}`), nil)

	calls := acc.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	call := calls[0]
	if call.ID != "call_abc" || call.Name != "read_file" {
		t.Errorf("unexpected identity: %+v", call)
	}
	if call.Arguments != `{"path":"a.txt"}` {
		t.Errorf("expected concatenated arguments, got %q", call.Arguments)
	}
}

func TestAccumulatorInterleavedIndexes(t *testing.T) {
	acc := NewStreamAccumulator()

	acc.Ingest(toolDelta(1, "call_b", "grep", `{"pat`), nil)
	acc.Ingest(toolDelta(0, "call_a", "shell", `{"comm`), nil)
	acc.Ingest(toolDelta(1, "", "", `tern":"x"}`), nil)
	acc.Ingest(toolDelta(0, "", "", `and":"ls"}`), nil)

	calls := acc.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	// First-seen order, not index order.
	if calls[0].ID != "call_b" || calls[0].Arguments != `{"pattern":"x"}` {
		t.Errorf("unexpected first call: %+v", calls[0])
	}
	if calls[1].ID != "call_a" || calls[1].Arguments != `{"command":"ls"}` {
		t.Errorf("unexpected second call: %+v", calls[1])
	}
}

func TestAccumulatorLastNonEmptyIdentityWins(t *testing.T) {
	acc := NewStreamAccumulator()

	acc.Ingest(toolDelta(0, "call_1", "shell", ""), nil)
	// Empty identity fields must not erase earlier values.
	acc.Ingest(toolDelta(0, "", "", `{}`), nil)
	// A later non-empty value replaces the earlier one.
	acc.Ingest(toolDelta(0, "call_2", "", ""), nil)

	calls := acc.Calls()
	if calls[0].ID != "call_2" {
		t.Errorf("expected last non-empty ID to win, got %q", calls[0].ID)
	}
	if calls[0].Name != "shell" {
		t.Errorf("expected name preserved through empty fragments, got %q", calls[0].Name)
	}
}

func TestAccumulatorSyntheticID(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.Ingest(toolDelta(3, "", "glob", `{}`), nil)

	calls := acc.Calls()
	if calls[0].ID != "call_3" {
		t.Errorf("expected synthetic ID call_3, got %q", calls[0].ID)
	}
}

func TestAccumulatorPartialArgEvents(t *testing.T) {
	acc := NewStreamAccumulator()

	var partials []AgentEvent
	emit := func(ev AgentEvent) {
		if ev.Kind == EventPartialArgs {
			partials = append(partials, ev)
		}
	}

	acc.Ingest(toolDelta(0, "call_x", "shell", `{"c`), emit)
	acc.Ingest(toolDelta(0, "", "", `md":1}`), emit)
	// A fragment with no argument bytes produces no partial event.
	acc.Ingest(toolDelta(0, "", "", ""), emit)

	if len(partials) != 2 {
		t.Fatalf("expected 2 partial events, got %d", len(partials))
	}
	if partials[0].Arguments != `{"c` {
		t.Errorf("expected first partial to carry args so far, got %q", partials[0].Arguments)
	}
	if partials[1].Arguments != `{"cmd":1}` {
		t.Errorf("expected second partial to carry accumulated args, got %q", partials[1].Arguments)
	}
	if partials[1].ToolName != "shell" || partials[1].CallID != "call_x" {
		t.Errorf("expected partial events tagged with call identity: %+v", partials[1])
	}
}

func TestAccumulatorMixedTextAndCalls(t *testing.T) {
	acc := NewStreamAccumulator()

	acc.Ingest(llmstream.TextChunk("Let me check."), nil)
	acc.Ingest(toolDelta(0, "call_1", "read_file", `{"file_path":"go.mod"}`), nil)

	if acc.Content() != "Let me check." {
		t.Errorf("unexpected content %q", acc.Content())
	}
	if !acc.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
}
