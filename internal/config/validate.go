package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	validAuthModes := []string{"token", "password", "none"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.Auth.Mode == "none" && cfg.Gateway.Bind != "" && cfg.Gateway.Bind != "loopback" {
		add("gateway.auth.mode", "auth mode none is only allowed with loopback bind")
	}

	// LLM
	validProviders := []string{"openrouter", "openai", "anthropic", "ollama", "mock"}
	if !slices.Contains(validProviders, cfg.LLM.Provider) {
		add("llm.provider", "must be one of %v, got %q", validProviders, cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		add("llm.model", "model is required")
	}
	if cfg.LLM.MaxTokens < 0 {
		add("llm.maxTokens", "must be >= 0, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Temperature != nil && (*cfg.LLM.Temperature < 0 || *cfg.LLM.Temperature > 2) {
		add("llm.temperature", "must be between 0 and 2, got %v", *cfg.LLM.Temperature)
	}
	if cfg.LLM.RequestsPerMinute < 0 {
		add("llm.requestsPerMinute", "must be >= 0, got %d", cfg.LLM.RequestsPerMinute)
	}

	// Agent
	if cfg.Agent.ConfirmationMarker == "" {
		add("agent.confirmationMarker", "marker must not be empty")
	}
	if cfg.Agent.ConfirmationTTLMinutes < 0 {
		add("agent.confirmationTtlMinutes", "must be >= 0, got %d", cfg.Agent.ConfirmationTTLMinutes)
	}

	// Session
	if cfg.Session.IdleMinutes < 0 {
		add("session.idleMinutes", "must be >= 0, got %d", cfg.Session.IdleMinutes)
	}

	// Store
	validDrivers := []string{"sqlite", "memory"}
	if !slices.Contains(validDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validDrivers, cfg.Store.Driver)
	}

	// GitHub
	if cfg.GitHub.Enabled && cfg.GitHub.Token == "" {
		add("github.token", "a token is required when github.enabled is set")
	}
	if cfg.GitHub.RequestsPerMinute < 0 {
		add("github.requestsPerMinute", "must be >= 0, got %d", cfg.GitHub.RequestsPerMinute)
	}

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Path == "" || cfg.Metrics.Path[0] != '/') {
		add("metrics.path", "must start with /, got %q", cfg.Metrics.Path)
	}

	return issues
}
