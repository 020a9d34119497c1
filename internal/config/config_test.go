package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := LoadWithViper(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "localhost:8080", config.Address())

	assert.Equal(t, 50, config.Gmail.MetadataMax)
	assert.Equal(t, 20, config.Gmail.FullChunkSize)

	assert.Equal(t, "gemini-2.5-flash-lite", config.Gemini.Model)
	assert.Equal(t, "https://generativelanguage.googleapis.com", config.Gemini.Endpoint)

	assert.Equal(t, "./analysis-cache.db", config.Cache.Path)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("EMAIL_TRIAGE_SERVER_PORT", "9090")
	t.Setenv("EMAIL_TRIAGE_GEMINI_API_KEY", "secret-key")
	t.Setenv("EMAIL_TRIAGE_GMAIL_METADATA_MAX", "25")
	t.Setenv("EMAIL_TRIAGE_GMAIL_CHUNK_PAUSE", "250ms")

	config, err := LoadWithViper(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, "secret-key", config.Gemini.APIKey)
	assert.Equal(t, 25, config.Gmail.MetadataMax)
	assert.Equal(t, "250ms", config.Gmail.ChunkPause.String())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "email-triage.yaml")
	content := `
server:
  host: 0.0.0.0
  port: "3000"
gemini:
  model: gemini-2.5-pro
cache:
  path: /tmp/triage.db
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	config, err := LoadWithFile(file)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", config.Address())
	assert.Equal(t, "gemini-2.5-pro", config.Gemini.Model)
	assert.Equal(t, "/tmp/triage.db", config.Cache.Path)

	// Settings the file leaves out keep their defaults.
	assert.Equal(t, 20, config.Gmail.FullChunkSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port not numeric", func(c *Config) { c.Server.Port = "http" }},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }},
		{"metadata max too small", func(c *Config) { c.Gmail.MetadataMax = 0 }},
		{"metadata max too large", func(c *Config) { c.Gmail.MetadataMax = 101 }},
		{"chunk size too large", func(c *Config) { c.Gmail.FullChunkSize = 101 }},
		{"negative pause", func(c *Config) { c.Gmail.ChunkPause = -1 }},
		{"missing model", func(c *Config) { c.Gemini.Model = "" }},
		{"missing endpoint", func(c *Config) { c.Gemini.Endpoint = "" }},
		{"non-positive timeout", func(c *Config) { c.Gemini.Timeout = 0 }},
		{"missing cache path", func(c *Config) { c.Cache.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadWithViper(viper.New(), "")
			require.NoError(t, err)

			tt.mutate(config)
			assert.Error(t, config.validate())
		})
	}
}
