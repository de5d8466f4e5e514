package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Provider defaults.
const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultOllamaURL     = "http://localhost:11434/v1"
	DefaultMarker        = "🤔 CONFIRM_ACTION"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		LLM: LLMConfig{
			Provider:       "openrouter",
			Model:          "anthropic/claude-3.5-sonnet",
			Fallbacks:      []string{"openai/gpt-4o", "openai/gpt-4o-mini"},
			MaxTokens:      1024,
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			Name:                   "Taskpilot",
			ConfirmationMarker:     DefaultMarker,
			ConfirmationTTLMinutes: 30,
		},
		Session: SessionConfig{
			IdleMinutes: 30,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
