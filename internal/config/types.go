package config

// Config is the root configuration for taskpilot.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Agent   AgentConfig   `yaml:"agent,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	GitHub  GitHubConfig  `yaml:"github,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password" | "none"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LLMConfig selects the model provider and the model fallback order.
type LLMConfig struct {
	Provider          string   `yaml:"provider,omitempty"` // "openrouter" | "openai" | "anthropic" | "ollama" | "mock"
	APIKey            string   `yaml:"apiKey,omitempty"`
	BaseURL           string   `yaml:"baseUrl,omitempty"`
	Model             string   `yaml:"model,omitempty"`
	Fallbacks         []string `yaml:"fallbacks,omitempty"`
	MaxTokens         int      `yaml:"maxTokens,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	RequestsPerMinute int      `yaml:"requestsPerMinute,omitempty"` // 0 disables client-side limiting
	TimeoutSeconds    int      `yaml:"timeoutSeconds,omitempty"`
}

// AgentConfig tunes the conversation loop and the confirmation workflow.
type AgentConfig struct {
	Name                   string `yaml:"name,omitempty"`
	ConfirmMutations       bool   `yaml:"confirmMutations,omitempty"`
	ConfirmationMarker     string `yaml:"confirmationMarker,omitempty"`
	ConfirmationTTLMinutes int    `yaml:"confirmationTtlMinutes,omitempty"`
	ExtraPrompt            string `yaml:"extraPrompt,omitempty"`
}

// SessionConfig defines conversational memory behavior.
type SessionConfig struct {
	IdleMinutes int `yaml:"idleMinutes,omitempty"`
}

// StoreConfig selects where projects and tasks live.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// GitHubConfig enables the optional github_* repository tools.
type GitHubConfig struct {
	Enabled           bool   `yaml:"enabled,omitempty"`
	Token             string `yaml:"token,omitempty"`
	APIURL            string `yaml:"apiUrl,omitempty"`
	RequestsPerMinute int    `yaml:"requestsPerMinute,omitempty"`
	TimeoutSeconds    int    `yaml:"timeoutSeconds,omitempty"`
}
