package llmstream

import (
	"context"
	"testing"
)

// mockProvider is a test double for StreamProvider.
type mockProvider struct {
	name   string
	chunks []Chunk
	err    error
	closed bool
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan Chunk, len(m.chunks))
	for _, c := range m.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

func drainText(t *testing.T, ch <-chan Chunk) string {
	t.Helper()
	var text string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		text += chunk.TextDelta()
	}
	return text
}

func TestClientStream(t *testing.T) {
	mock := &mockProvider{name: "test-provider", chunks: []Chunk{TextChunk("Hello"), TextChunk("!")}}
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	ch, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainText(t, ch); got != "Hello!" {
		t.Errorf("expected %q, got %q", "Hello!", got)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := &mockProvider{name: "openai", chunks: []Chunk{TextChunk("OpenAI response")}}
	anthropic := &mockProvider{name: "anthropic", chunks: []Chunk{TextChunk("Anthropic response")}}

	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	// Explicit provider wins.
	ch, err := client.Stream(context.Background(), Request{
		Model:    "gpt-5.2",
		Messages: []Message{UserMessage("Hi")},
		Provider: "anthropic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainText(t, ch); got != "Anthropic response" {
		t.Errorf("expected Anthropic response, got %q", got)
	}

	// Default provider when none specified.
	ch, err = client.Stream(context.Background(), Request{
		Model:    "unknown-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainText(t, ch); got != "OpenAI response" {
		t.Errorf("expected OpenAI response, got %q", got)
	}
}

func TestClientCatalogInference(t *testing.T) {
	anthropic := &mockProvider{name: "anthropic", chunks: []Chunk{TextChunk("ok")}}
	openai := &mockProvider{name: "openai", chunks: []Chunk{TextChunk("ok")}}

	// Two providers, no default, so routing must come from the catalog.
	client := &Client{providers: map[string]StreamProvider{
		"anthropic": anthropic,
		"openai":    openai,
	}}

	ch, err := client.Stream(context.Background(), Request{
		Model:    "claude-opus-4-6",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainText(t, ch)
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for no provider")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientUnregisteredProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", &mockProvider{name: "openai"}))
	_, err := client.Stream(context.Background(), Request{
		Model:    "test-model",
		Provider: "anthropic",
	})
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientSingleProviderBecomesDefault(t *testing.T) {
	mock := &mockProvider{name: "only", chunks: []Chunk{TextChunk("ok")}}
	client := NewClient(WithProvider("only", mock))

	ch, err := client.Stream(context.Background(), Request{Model: "any"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainText(t, ch)
}

func TestClientClose(t *testing.T) {
	mock := &mockProvider{name: "test"}
	client := NewClient(WithProvider("test", mock))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mock.closed {
		t.Error("expected provider to be closed")
	}
}
