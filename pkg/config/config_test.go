package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 600, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agora.yaml")
	data := `
server:
  listen: ":9090"
  base_domain: "myplatform.com"
  shutdown_timeout: "45s"
rate_limit:
  requests_per_minute: 120
retry:
  max_attempts: 3
  initial_delay: "1s"
  multiplier: 2.0
  max_delay: "2m"
queue:
  workers: 4
  max_execution: "10m"
  bounds:
    CRITICAL: 100
    HIGH: 200
    DEFAULT: 300
    LOW: 400
    BULK: 500
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "myplatform.com", cfg.Server.BaseDomain)
	assert.Equal(t, 45*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, 100, cfg.Queue.Bounds["CRITICAL"])
	assert.Equal(t, 500, cfg.Queue.Bounds["BULK"])
	// Untouched sections keep defaults.
	assert.Equal(t, 5, cfg.Media.MaxDownloadAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agora.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":9090\"\n"), 0644))

	t.Setenv("AGORA_LISTEN", ":7070")
	t.Setenv("AGORA_LOG_LEVEL", "debug")
	t.Setenv("AGORA_RATE_LIMIT_RPM", "60")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "empty listen",
			mutate: func(c *Config) { c.Server.Listen = "" },
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Log.Level = "verbose" },
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Queue.Workers = 0 },
		},
		{
			name:   "multiplier below one",
			mutate: func(c *Config) { c.Retry.Multiplier = 0.5 },
		},
		{
			name:   "zero lane bound",
			mutate: func(c *Config) { c.Queue.Bounds["HIGH"] = 0 },
		},
		{
			name:   "zero download attempts",
			mutate: func(c *Config) { c.Media.MaxDownloadAttempts = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestDurationMarshal(t *testing.T) {
	out, err := Duration(90 * time.Second).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agora.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
