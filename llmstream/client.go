package llmstream

import (
	"context"
	"fmt"
	"sync"
)

// Client routes streaming requests to registered provider backends.
type Client struct {
	providers       map[string]StreamProvider
	defaultProvider string
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider backend.
func WithProvider(name string, provider StreamProvider) ClientOption {
	return func(c *Client) {
		c.providers[name] = provider
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]StreamProvider),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider backend to the client.
func (c *Client) RegisterProvider(name string, provider StreamProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// resolveProvider determines which provider backend serves a request.
func (c *Client) resolveProvider(req Request) (StreamProvider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		// Try to infer from the model catalog.
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	provider, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return provider, nil
}

// Stream sends a streaming request to the resolved provider.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	provider, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	if req.Provider == "" {
		req.Provider = provider.Name()
	}

	return provider.Stream(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, provider := range c.providers {
		if closer, ok := provider.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NewClientFromEnv creates a Client by scanning environment variables for
// API keys and registering a gollm-backed provider for each one found.
func NewClientFromEnv() *Client {
	c := NewClient()

	// The GollmProvider handles provider-specific env var lookup internally.
	for _, provider := range []string{"openai", "anthropic"} {
		p, err := NewGollmProvider(provider)
		if err == nil {
			c.RegisterProvider(provider, p)
		}
	}

	return c
}
