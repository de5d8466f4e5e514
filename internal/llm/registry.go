package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/logging"
)

// ProviderError is returned when a model provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRetryable reports whether another model might succeed where this one failed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}

// IsToolsRejected reports whether the provider refused the request because
// the model does not support tool calling.
func IsToolsRejected(err error) bool {
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		return false
	}
	if provErr.Code != http.StatusBadRequest && provErr.Code != http.StatusNotFound {
		return false
	}
	msg := strings.ToLower(provErr.Message)
	return strings.Contains(msg, "tool") || strings.Contains(msg, "function")
}

// Registry manages provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model name → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name to a provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the provider used when no model or provider name matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig builds a registry holding the configured provider,
// which also serves as the fallback for every model name.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var client Client
	switch cfg.Provider {
	case "openrouter", "":
		base := cfg.BaseURL
		if base == "" {
			base = config.DefaultOpenRouterURL
		}
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "openrouter", Message: "API key is not configured"}
		}
		client = NewOpenAIClient("openrouter", cfg.APIKey, base, timeout)
	case "openai":
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "openai", Message: "API key is not configured"}
		}
		client = NewOpenAIClient("openai", cfg.APIKey, cfg.BaseURL, timeout)
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = config.DefaultOllamaURL
		}
		// Ollama ignores the key but the SDK requires one.
		client = NewOpenAIClient("ollama", "ollama", base, timeout)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, &ProviderError{Provider: "anthropic", Message: "API key is not configured"}
		}
		client = NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.MaxTokens, timeout)
	case "mock":
		client = &MockClient{ProviderName: "mock"}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	if cfg.RequestsPerMinute > 0 {
		client = NewRateLimitedClient(client, cfg.RequestsPerMinute)
	}

	name := client.Name()
	reg.Register(name, client)
	reg.SetFallback(name)
	return reg, nil
}
