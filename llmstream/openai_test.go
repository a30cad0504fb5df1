package llmstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseServer(t *testing.T, lines []string, check func(r *http.Request, body chatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			var body chatRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}
			check(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
}

func TestOpenAIStreamText(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}, func(r *http.Request, body chatRequest) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if !body.Stream {
			t.Error("expected stream: true")
		}
		if body.Model != "gpt-5.2" {
			t.Errorf("unexpected model %q", body.Model)
		}
	})
	defer server.Close()

	provider, err := NewOpenAICompatibleProvider("test-key", server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch, err := provider.Stream(context.Background(), Request{
		Model:    "gpt-5.2",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var text string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		text += chunk.TextDelta()
	}
	if text != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", text)
	}
}

func TestOpenAIStreamToolCallDeltas(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_abc","function":{"name":"read_file","arguments":""}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"path\":"}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"a.txt\"}"}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}, nil)
	defer server.Close()

	provider, err := NewOpenAICompatibleProvider("", server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch, err := provider.Stream(context.Background(), Request{Model: "gpt-5.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var deltas []ToolCallDelta
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		for _, choice := range chunk.Choices {
			deltas = append(deltas, choice.Delta.ToolCalls...)
		}
	}

	if len(deltas) != 3 {
		t.Fatalf("expected 3 tool call deltas, got %d", len(deltas))
	}
	if deltas[0].ID != "call_abc" || deltas[0].Function.Name != "read_file" {
		t.Errorf("unexpected first delta: %+v", deltas[0])
	}
	args := deltas[0].Function.Arguments + deltas[1].Function.Arguments + deltas[2].Function.Arguments
	if args != `{"path":"a.txt"}` {
		t.Errorf("unexpected reassembled arguments: %q", args)
	}
}

func TestOpenAIStreamToolDefinitionsOnWire(t *testing.T) {
	server := sseServer(t, []string{`data: [DONE]`}, func(r *http.Request, body chatRequest) {
		if len(body.Tools) != 1 {
			t.Fatalf("expected 1 tool on the wire, got %d", len(body.Tools))
		}
		if body.Tools[0].Type != "function" || body.Tools[0].Function.Name != "shell" {
			t.Errorf("unexpected wire tool: %+v", body.Tools[0])
		}
	})
	defer server.Close()

	provider, _ := NewOpenAICompatibleProvider("", server.URL)
	ch, err := provider.Stream(context.Background(), Request{
		Model: "gpt-5.2",
		ToolDefs: []ToolDefinition{{
			Name:        "shell",
			Description: "Run a shell command",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range ch {
	}
}

func TestOpenAIStatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		wantAuth bool
		wantRate bool
	}{
		{401, true, false},
		{429, false, true},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(tt.status)
			fmt.Fprint(w, `{"error":{"message":"nope","code":"denied"}}`)
		}))

		provider, _ := NewOpenAICompatibleProvider("key", server.URL)
		_, err := provider.Stream(context.Background(), Request{Model: "gpt-5.2"})
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}

		if tt.wantAuth {
			ae, ok := err.(*AuthenticationError)
			if !ok {
				t.Errorf("status %d: expected AuthenticationError, got %T", tt.status, err)
			} else if ae.Message != "nope" {
				t.Errorf("status %d: expected parsed message, got %q", tt.status, ae.Message)
			}
		}
		if tt.wantRate {
			rl, ok := err.(*RateLimitError)
			if !ok {
				t.Errorf("status %d: expected RateLimitError, got %T", tt.status, err)
			} else if rl.RetryAfter == nil || *rl.RetryAfter != 5 {
				t.Errorf("status %d: expected RetryAfter 5, got %v", tt.status, rl.RetryAfter)
			}
		}
		server.Close()
	}
}

func TestOpenAIMalformedChunkSurfacesStreamError(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"index":0,"delta":{"content":"ok"}}]}`,
		`data: {not json`,
	}, nil)
	defer server.Close()

	provider, _ := NewOpenAICompatibleProvider("", server.URL)
	ch, err := provider.Stream(context.Background(), Request{Model: "gpt-5.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var last Chunk
	for chunk := range ch {
		last = chunk
	}
	if last.Err == nil {
		t.Fatal("expected a final chunk carrying the stream error")
	}
	if _, ok := last.Err.(*StreamError); !ok {
		t.Errorf("expected StreamError, got %T", last.Err)
	}
}

func TestOpenAIRequiresBaseURL(t *testing.T) {
	if _, err := NewOpenAICompatibleProvider("key", "  "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
