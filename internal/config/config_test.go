package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://license.scanpro.dev", cfg.Authority.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Authority.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.Authority.CheckInterval)
	assert.Equal(t, "file", cfg.License.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.License.CacheTTL)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCANPRO_AUTHORITY_BASE_URL", "https://authority.example.com")
	t.Setenv("SCANPRO_AUTHORITY_CHECK_INTERVAL", "1h")
	t.Setenv("SCANPRO_LICENSE_STORE_BACKEND", "sqlite")
	t.Setenv("SCANPRO_LICENSE_STORE_PATH", "/tmp/license.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://authority.example.com", cfg.Authority.BaseURL)
	assert.Equal(t, time.Hour, cfg.Authority.CheckInterval)
	assert.Equal(t, "sqlite", cfg.License.StoreBackend)
	assert.Equal(t, "/tmp/license.db", cfg.License.StorePath)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanpro.yml")
	content := []byte(`
server:
  port: 9090
authority:
  base_url: https://file.example.com
  check_interval: 2h
license:
  cache_ttl: 1m
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("SCANPRO_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://file.example.com", cfg.Authority.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.Authority.CheckInterval)
	assert.Equal(t, time.Minute, cfg.License.CacheTTL)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Authority.Timeout)
}

func TestEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanpro.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("SCANPRO_CONFIG", path)
	t.Setenv("SCANPRO_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty base url", func(c *Config) { c.Authority.BaseURL = "" }},
		{"timeout too long", func(c *Config) { c.Authority.Timeout = time.Minute }},
		{"check interval too long", func(c *Config) { c.Authority.CheckInterval = 24 * time.Hour }},
		{"check interval zero", func(c *Config) { c.Authority.CheckInterval = 0 }},
		{"unknown store backend", func(c *Config) { c.License.StoreBackend = "redis" }},
		{"non-positive cache ttl", func(c *Config) { c.License.CacheTTL = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("SCANPRO_AUTHORITY_CHECK_INTERVAL", "48h")

	_, err := Load()
	assert.Error(t, err)
}
