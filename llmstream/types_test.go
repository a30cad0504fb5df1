package llmstream

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	if m := SystemMessage("s"); m.Role != RoleSystem || m.Content != "s" {
		t.Errorf("unexpected system message: %+v", m)
	}
	if m := UserMessage("u"); m.Role != RoleUser || m.Content != "u" {
		t.Errorf("unexpected user message: %+v", m)
	}

	call := ToolCall{ID: "call_1", Function: FunctionCall{Name: "shell", Arguments: `{"command":"ls"}`}}
	m := AssistantToolCallMessage("thinking", call)
	if m.Role != RoleAssistant || m.Content != "thinking" {
		t.Errorf("unexpected assistant message: %+v", m)
	}
	if len(m.ToolCalls) != 1 || m.ToolCalls[0].Type != "function" {
		t.Errorf("expected one function tool call, got %+v", m.ToolCalls)
	}

	r := ToolResultMessage("call_1", "output")
	if r.Role != RoleTool || r.ToolCallID != "call_1" || r.Content != "output" {
		t.Errorf("unexpected tool result message: %+v", r)
	}
}

func TestMessageWireShape(t *testing.T) {
	m := AssistantToolCallMessage("", ToolCall{ID: "call_1", Function: FunctionCall{Name: "f", Arguments: "{}"}})
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wire map[string]interface{}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wire["role"] != "assistant" {
		t.Errorf("expected role assistant, got %v", wire["role"])
	}
	if _, ok := wire["tool_calls"]; !ok {
		t.Error("expected tool_calls on the wire")
	}
	if _, ok := wire["tool_call_id"]; ok {
		t.Error("tool_call_id should be omitted on assistant messages")
	}
}

func TestChunkDecodeFromWire(t *testing.T) {
	data := `{"id":"c1","choices":[{"index":0,"delta":{"content":"hi","tool_calls":[{"index":1,"id":"call_x","function":{"name":"f","arguments":"{"}}]},"finish_reason":""}],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`

	var chunk Chunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.TextDelta() != "hi" {
		t.Errorf("expected text delta %q, got %q", "hi", chunk.TextDelta())
	}
	tc := chunk.Choices[0].Delta.ToolCalls[0]
	if tc.Index != 1 || tc.ID != "call_x" || tc.Function.Name != "f" || tc.Function.Arguments != "{" {
		t.Errorf("unexpected tool call delta: %+v", tc)
	}
	if chunk.Usage == nil || chunk.Usage.TotalTokens != 8 {
		t.Errorf("unexpected usage: %+v", chunk.Usage)
	}
}
