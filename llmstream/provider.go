package llmstream

import "context"

// StreamProvider is the interface every provider backend must implement.
type StreamProvider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Stream sends a request and returns a channel of response chunks.
	// The channel is closed when the stream ends; a chunk with a non-nil
	// Err marks a mid-stream failure and is the last chunk sent.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Closer is implemented by providers that hold resources.
type Closer interface {
	Close() error
}
