package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedClient spaces out calls to a provider so that bursts of chat
// requests do not trip the provider's own limits.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimitedClient allows perMinute calls per minute with a burst of one.
func NewRateLimitedClient(next Client, perMinute int) *RateLimitedClient {
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (c *RateLimitedClient) Name() string { return c.next.Name() }

func (c *RateLimitedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Provider: c.next.Name(), Message: fmt.Sprintf("rate limit wait: %v", err), Code: 429}
	}
	return c.next.Complete(ctx, req)
}
