package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()

	cfg.Gateway.Port = -1
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.port", issues[0].Path)

	cfg.Gateway.Port = 70000
	assert.NotEmpty(t, Validate(&cfg))
}

func TestValidate_ValidPort(t *testing.T) {
	cfg := Defaults()
	for _, port := range []int{0, 8080, 65535} {
		cfg.Gateway.Port = port
		assert.Empty(t, Validate(&cfg), "port %d should be valid", port)
	}
}

func TestValidate_Enums(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"auth mode", func(c *Config) { c.Gateway.Auth.Mode = "oauth" }, "gateway.auth.mode"},
		{"provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Contains(t, issuePaths(Validate(&cfg)), tt.path)
		})
	}
}

func TestValidate_AuthNoneRequiresLoopback(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Auth.Mode = "none"
	assert.Empty(t, Validate(&cfg))

	cfg.Gateway.Bind = "lan"
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.auth.mode")
}

func TestValidate_LLM(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Model = ""
	assert.Contains(t, issuePaths(Validate(&cfg)), "llm.model")

	cfg = Defaults()
	hot := 3.5
	cfg.LLM.Temperature = &hot
	assert.Contains(t, issuePaths(Validate(&cfg)), "llm.temperature")

	cfg = Defaults()
	cfg.LLM.RequestsPerMinute = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "llm.requestsPerMinute")
}

func TestValidate_Agent(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.ConfirmationMarker = ""
	cfg.Agent.ConfirmationTTLMinutes = -5
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "agent.confirmationMarker")
	assert.Contains(t, paths, "agent.confirmationTtlMinutes")
}

func TestValidate_MetricsPath(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Path = "metrics"
	assert.Contains(t, issuePaths(Validate(&cfg)), "metrics.path")

	cfg.Metrics.Enabled = false
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_GitHub(t *testing.T) {
	cfg := Defaults()
	cfg.GitHub.Enabled = true
	cfg.GitHub.RequestsPerMinute = -1
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "github.token")
	assert.Contains(t, paths, "github.requestsPerMinute")

	cfg.GitHub.Token = "ghp_x"
	cfg.GitHub.RequestsPerMinute = 0
	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "llm.model", Message: "model is required"}
	assert.Equal(t, "llm.model: model is required", issue.String())
}
