package agent

import (
	"context"
	"errors"

	"github.com/soyeahso/taskpilot/internal/llm"
	"github.com/soyeahso/taskpilot/internal/logging"
)

// FailoverClient wraps an LLM registry to try fallback models on failure.
type FailoverClient struct {
	registry  *llm.Registry
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries the primary model first,
// then falls back through the list on retryable errors (401, 429, 5xx).
func NewFailoverClient(registry *llm.Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry:  registry,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// Name implements llm.Client.
func (f *FailoverClient) Name() string { return "failover" }

// Models returns the models in the order they are tried.
func (f *FailoverClient) Models() []string {
	return append([]string{f.primary}, f.fallbacks...)
}

// Complete tries the primary model, falling back on retryable errors.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for _, model := range f.Models() {
		client, err := f.registry.Resolve(model)
		if err != nil {
			f.log.Debug().Str("model", model).Err(err).Msg("no provider for model, skipping")
			lastErr = err
			continue
		}

		req.Model = model
		resp, err := f.completeModel(ctx, client, req)
		if err == nil {
			if resp.Model == "" {
				resp.Model = model
			}
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if llm.IsRetryable(err) {
			f.log.Warn().
				Str("model", model).
				Err(err).
				Msg("retryable error, trying next model")
			continue
		}

		// Non-retryable error, don't try more models
		return nil, err
	}

	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return nil, lastErr
}

// completeModel calls one model, retrying once without tools when the
// provider refuses tool calling for it.
func (f *FailoverClient) completeModel(ctx context.Context, client llm.Client, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := client.Complete(ctx, req)
	if err == nil || len(req.Tools) == 0 || !llm.IsToolsRejected(err) {
		return resp, err
	}

	f.log.Warn().Str("model", req.Model).Err(err).Msg("model rejected tools, retrying without them")
	req.Tools = nil
	return client.Complete(ctx, req)
}
