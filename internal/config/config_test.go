package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://www.bing.com/images/search", cfg.Search.Endpoint)
	require.Equal(t, 10*time.Second, cfg.SearchTimeout())
	require.Equal(t, 5, cfg.Search.MaxCandidates)
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 5, cfg.Fetch.MaxRedirects)
	require.Equal(t, 1000, cfg.Fetch.MinBytes)
	require.Equal(t, 1, cfg.Batch.Concurrency)
	require.Equal(t, 500*time.Millisecond, cfg.RowDelay())
	require.Equal(t, "local", cfg.Store.Provider)
	require.Equal(t, "noop", cfg.PubSub.Provider)
	require.False(t, cfg.Auth.Enabled)
	require.False(t, cfg.Headless.Enabled)
}

func TestLoad_ConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
batch:
  concurrency: 4
  row_delay_ms: 0
store:
  provider: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Batch.Concurrency)
	require.Zero(t, cfg.RowDelay())
	require.Equal(t, "memory", cfg.Store.Provider)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty search endpoint", func(c *Config) { c.Search.Endpoint = "" }},
		{"zero search timeout", func(c *Config) { c.Search.TimeoutSeconds = 0 }},
		{"zero candidates", func(c *Config) { c.Search.MaxCandidates = 0 }},
		{"zero fetch timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }},
		{"negative size floor", func(c *Config) { c.Fetch.MinBytes = -1 }},
		{"zero concurrency", func(c *Config) { c.Batch.Concurrency = 0 }},
		{"unknown store provider", func(c *Config) { c.Store.Provider = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Store.Provider = "gcs"; c.Store.GCSBucket = "" }},
		{"unknown pubsub provider", func(c *Config) { c.PubSub.Provider = "kafka" }},
		{"pubsub without project", func(c *Config) { c.PubSub.Provider = "pubsub" }},
		{"headless without parallelism", func(c *Config) { c.Headless.Enabled = true; c.Headless.MaxParallel = 0 }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, base.Validate())
}
