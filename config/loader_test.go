package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Client.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Client.CallTimeout)
	assert.Equal(t, 0.4, cfg.Workflow.RelevanceThreshold)
	assert.True(t, cfg.Workflow.WarnOnBestEffort)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9090"
client:
  max_attempts: 5
  call_timeout: 10s
workflow:
  run_deadline: 2m
  warn_on_best_effort: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Client.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Client.CallTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.RunDeadline)
	assert.False(t, cfg.Workflow.WarnOnBestEffort)

	// Untouched sections keep defaults; the completion base URL carries the
	// /v1 prefix the chat endpoint path is appended to.
	assert.Equal(t, "https://api.tavily.com", cfg.Search.BaseURL)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Completion.BaseURL)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  api_key: from-yaml\n"), 0o600))

	t.Setenv("AUGUR_SEARCH_API_KEY", "from-env")
	t.Setenv("AUGUR_CLIENT_MAX_ATTEMPTS", "4")
	t.Setenv("AUGUR_WORKFLOW_RUN_DEADLINE", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Search.APIKey)
	assert.Equal(t, 4, cfg.Client.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Workflow.RunDeadline)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.Client.MaxAttempts = 0 }},
		{"zero call timeout", func(c *Config) { c.Client.CallTimeout = 0 }},
		{"multiplier below one", func(c *Config) { c.Client.Multiplier = 0.5 }},
		{"zero concurrency", func(c *Config) { c.Client.SearchConcurrency = 0 }},
		{"threshold out of range", func(c *Config) { c.Workflow.RelevanceThreshold = 1.5 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
