package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for generation providers. RespondFunc,
// when set, decides the response per request; otherwise Response/Err are
// returned for every call. Requests are captured for inspection and safe
// to read after concurrent use.
type MockProvider struct {
	Response    string
	Err         error
	RespondFunc func(req CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	content, err := m.Response, m.Err
	if m.RespondFunc != nil {
		content, err = m.RespondFunc(req)
	}
	if err != nil {
		return CompletionResponse{}, err
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil if none were made.
func (m *MockProvider) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
