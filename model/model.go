package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoResponse is returned when a provider answers without any text.
var ErrNoResponse = errors.New("model returned no content")

// Request is a single prompt completion request.
type Request struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature"`
	// JSONMode asks the provider to answer with a JSON document.
	JSONMode  bool  `json:"json_mode,omitempty"`
	MaxTokens int64 `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completion returned by a provider.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a client implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", "mock"
}

// Client is the minimal interface the planner needs to drive generation.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns information about the client implementation.
	Info() Info
}

// MockClient is a lightweight in-memory Client useful for tests and examples.
type MockClient struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	fallback  *Response
	err       error
	requests  []Request
}

// NewMockClient constructs a MockClient.
func NewMockClient(name string) *MockClient {
	return &MockClient{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic completion for a prompt.
func (m *MockClient) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[prompt] = response
}

// SetDefault sets the completion returned for unknown prompts.
func (m *MockClient) SetDefault(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = &Response{Text: text, FinishReason: "stop"}
}

// SetError makes every call fail with err.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

// Requests returns the requests received so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.err != nil {
		return Response{}, m.err
	}

	if text, ok := m.responses[req.Prompt]; ok {
		return Response{Text: text, FinishReason: "stop"}, nil
	}

	if m.fallback != nil {
		return *m.fallback, nil
	}

	return Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt), FinishReason: "stop"}, nil
}

// Info implements Client.
func (m *MockClient) Info() Info { return m.info }
