package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(mock llm.Client) *llm.Registry {
	reg := llm.NewRegistry(silentLog())
	reg.Register("mock", mock)
	reg.SetFallback("mock")
	return reg
}

func TestFailoverSuccess(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}

	fc := NewFailoverClient(testRegistry(mock), "some/model", nil, silentLog())

	resp, err := fc.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "some/model", resp.Model, "model name filled in when the provider leaves it empty")
	assert.Equal(t, "failover", fc.Name())
}

func TestFailoverTriesFallback(t *testing.T) {
	callOrder := []string{}

	primary := &llm.MockClient{
		ProviderName: "primary",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			callOrder = append(callOrder, "primary")
			return nil, &llm.ProviderError{Provider: "primary", Message: "overloaded", Code: 529}
		},
	}

	fallback := &llm.MockClient{
		ProviderName: "fallback",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			callOrder = append(callOrder, "fallback")
			assert.Equal(t, "fallback", req.Model)
			return &llm.CompletionResponse{Content: "fallback response"}, nil
		},
	}

	reg := llm.NewRegistry(silentLog())
	reg.Register("primary", primary)
	reg.Register("fallback", fallback)

	fc := NewFailoverClient(reg, "primary", []string{"fallback"}, silentLog())
	assert.Equal(t, []string{"primary", "fallback"}, fc.Models())

	resp, err := fc.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fallback response", resp.Content)
	assert.Equal(t, []string{"primary", "fallback"}, callOrder)
}

func TestFailoverNonRetryableStops(t *testing.T) {
	callCount := 0

	primary := &llm.MockClient{
		ProviderName: "primary",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			callCount++
			return nil, fmt.Errorf("non-retryable error")
		},
	}

	fallback := &llm.MockClient{
		ProviderName: "fallback",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			callCount++
			return &llm.CompletionResponse{Content: "should not reach"}, nil
		},
	}

	reg := llm.NewRegistry(silentLog())
	reg.Register("primary", primary)
	reg.Register("fallback", fallback)

	fc := NewFailoverClient(reg, "primary", []string{"fallback"}, silentLog())

	_, err := fc.Complete(context.Background(), llm.CompletionRequest{})
	assert.Error(t, err)
	assert.Equal(t, 1, callCount, "should not try fallback on non-retryable error")
}

func TestFailoverAllFail(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		Script:       []llm.MockReply{{Err: &llm.ProviderError{Provider: "mock", Message: "busy", Code: 503}}},
	}

	fc := NewFailoverClient(testRegistry(mock), "a", []string{"b", "c"}, silentLog())

	_, err := fc.Complete(context.Background(), llm.CompletionRequest{})
	var provErr *llm.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, 503, provErr.Code)
	assert.Equal(t, 3, mock.Calls())
}

func TestFailoverNoProvider(t *testing.T) {
	fc := NewFailoverClient(llm.NewRegistry(silentLog()), "missing", nil, silentLog())

	_, err := fc.Complete(context.Background(), llm.CompletionRequest{})
	assert.ErrorContains(t, err, "no LLM provider")
}

func TestFailoverRetriesWithoutTools(t *testing.T) {
	var toolCounts []int
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			toolCounts = append(toolCounts, len(req.Tools))
			if len(req.Tools) > 0 {
				return nil, &llm.ProviderError{Provider: "mock", Message: "this model does not support tool use", Code: 400}
			}
			return &llm.CompletionResponse{Content: "plain answer"}, nil
		},
	}

	fc := NewFailoverClient(testRegistry(mock), "small-model", nil, silentLog())

	resp, err := fc.Complete(context.Background(), llm.CompletionRequest{
		Tools: []llm.ToolDefinition{{Name: "list_projects"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", resp.Content)
	assert.Equal(t, []int{1, 0}, toolCounts)
}
