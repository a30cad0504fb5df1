package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// OpenAICompatibleProvider streams chat completions from any server that
// speaks the OpenAI chat-completions protocol (OpenAI itself, LocalAI,
// LM Studio, vLLM, Groq and the like). If apiKey is empty, requests go
// out without an Authorization header.
type OpenAICompatibleProvider struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAICompatibleProvider.
type OpenAIOption func(*OpenAICompatibleProvider)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(p *OpenAICompatibleProvider) {
		p.httpClient = hc
	}
}

// WithProviderName overrides the provider identifier (default "openai").
func WithProviderName(name string) OpenAIOption {
	return func(p *OpenAICompatibleProvider) {
		p.name = name
	}
}

// NewOpenAICompatibleProvider constructs a streaming provider for an
// OpenAI-compatible API. baseURL must point at the API root, e.g.
// https://api.openai.com/v1 or http://localhost:11434/v1.
func NewOpenAICompatibleProvider(apiKey, baseURL string, opts ...OpenAIOption) (*OpenAICompatibleProvider, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "base URL is required for OpenAI-compatible provider"}}
	}

	p := &OpenAICompatibleProvider{
		name:    "openai",
		apiKey:  apiKey,
		baseURL: trimmedBase,
		// No client timeout: streams stay open as long as the model
		// generates. Callers bound the request with ctx.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewOpenAIProviderFromEnv constructs a provider from OPENAI_API_KEY and
// OPENAI_BASE_URL (default https://api.openai.com/v1).
func NewOpenAIProviderFromEnv() (*OpenAICompatibleProvider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "OPENAI_API_KEY is not set"}}
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return NewOpenAICompatibleProvider(apiKey, baseURL)
}

func (p *OpenAICompatibleProvider) Name() string {
	return p.name
}

// chatRequest is the wire payload for POST /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Stream sends the request and returns a channel of decoded chunks. HTTP
// and handshake failures are returned synchronously; failures after the
// stream opens arrive as a final chunk with Err set.
func (p *OpenAICompatibleProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	payload := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, def := range req.ToolDefs {
		payload.Tools = append(payload.Tools, wireTool{Type: "function", Function: def})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "failed to encode request", Cause: err},
			Provider: p.name,
		}}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, &NetworkError{SDKError: SDKError{Message: "request failed", Cause: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, p.statusError(resp)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 256*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}

			var chunk Chunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				p.sendErr(ctx, out, &StreamError{SDKError: SDKError{Message: "failed to decode stream chunk", Cause: err}})
				return
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			p.sendErr(ctx, out, &StreamError{SDKError: SDKError{Message: "stream read failed", Cause: err}})
		}
	}()

	return out, nil
}

func (p *OpenAICompatibleProvider) sendErr(ctx context.Context, out chan<- Chunk, err error) {
	select {
	case out <- Chunk{Err: err}:
	case <-ctx.Done():
	}
}

func (p *OpenAICompatibleProvider) statusError(resp *http.Response) error {
	message := fmt.Sprintf("request failed with status %d", resp.StatusCode)
	errorCode := ""

	var eb errorBody
	if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil && eb.Error.Message != "" {
		message = eb.Error.Message
		errorCode = eb.Error.Code
	}

	var retryAfter *float64
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil {
			retryAfter = &secs
		}
	}

	return ErrorFromStatusCode(resp.StatusCode, message, p.name, errorCode, retryAfter)
}
