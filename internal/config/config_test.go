package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "fil-e-rug", cfg.App.Name)
	assert.Equal(t, int64(314159), cfg.Filecoin.ChainID)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "local", cfg.Providers.Default)
	assert.Equal(t, "sha256", cfg.Chains.Hasher)
	assert.Equal(t, 5, cfg.Votes.DefaultConfidence)
	assert.Equal(t, 30*time.Second, cfg.Filecoin.RequestTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  type: sqlite
  connection_string: ` + filepath.Join(dir, "test.db") + `
providers:
  default: lighthouse
  lighthouse:
    api_key: test-key
chains:
  hasher: rolling
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lighthouse", cfg.Providers.Default)
	assert.Equal(t, "test-key", cfg.Providers.Lighthouse.APIKey)
	assert.Equal(t, "rolling", cfg.Chains.Hasher)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }},
		{"missing connection string", func(c *Config) { c.Storage.ConnectionString = "" }},
		{"unknown provider", func(c *Config) { c.Providers.Default = "s3" }},
		{"lighthouse without key", func(c *Config) { c.Providers.Default = "lighthouse"; c.Providers.Lighthouse.APIKey = "" }},
		{"unknown hasher", func(c *Config) { c.Chains.Hasher = "md5" }},
		{"confidence out of range", func(c *Config) { c.Votes.DefaultConfidence = 11 }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
