package llm

import (
	"context"
	"sync"
)

// MockReply is one scripted result of MockClient.
type MockReply struct {
	Response *CompletionResponse
	Err      error
}

// MockClient is a test double for Client. CompleteFunc wins when set;
// otherwise replies are taken from Script in order and the last one repeats.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Script       []MockReply

	mu       sync.Mutex
	requests []CompletionRequest
}

// NewScriptedClient returns a mock that answers with responses in order.
func NewScriptedClient(responses ...*CompletionResponse) *MockClient {
	m := &MockClient{ProviderName: "mock"}
	for _, r := range responses {
		m.Script = append(m.Script, MockReply{Response: r})
	}
	return m
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, cloneRequest(req))
	n := len(m.requests)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if len(m.Script) == 0 {
		return &CompletionResponse{Content: "mock response", Model: req.Model}, nil
	}
	r := m.Script[min(n, len(m.Script))-1]
	if r.Err != nil {
		return nil, r.Err
	}
	resp := *r.Response
	return &resp, nil
}

// Calls returns how many times Complete was called.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns copies of every request received.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func cloneRequest(req CompletionRequest) CompletionRequest {
	req.Messages = append([]Message(nil), req.Messages...)
	req.Tools = append([]ToolDefinition(nil), req.Tools...)
	return req
}
