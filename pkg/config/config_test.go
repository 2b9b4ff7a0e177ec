package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexireader/pkg/annotate"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
data:
  dir: "corpus"
panel:
  high_threshold: 30
  medium_threshold: 10
stream:
  server_url: "http://tutor:9000"
  idle_timeout: "90s"
ollama:
  default_model: "llama3.2"
  allowed_models: "llama3.2, gpt-oss:20b"
redis:
  addr: "localhost:6379"
  ttl: "1h"
ingest:
  mode: "sentence"
  workers: 2
log:
  level: "debug"
  format: "json"
`

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, annotate.DefaultConfig(), cfg.Panel.Annotate())
	assert.Equal(t, 60*time.Second, cfg.Stream.IdleTimeout)
	assert.Equal(t, "gpt-oss:20b", cfg.Ollama.DefaultModel)
	assert.Equal(t, []string{"gpt-oss:20b"}, cfg.Ollama.AllowedModels())
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "paragraph", cfg.Ingest.Mode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
}

func TestLoad_ValidYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeYAML(t, validYAML))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "corpus", cfg.Data.Dir)
	assert.Equal(t, 30, cfg.Panel.HighThreshold)
	assert.Equal(t, 10, cfg.Panel.MediumThreshold)
	// Unset keys keep their defaults.
	assert.Equal(t, 8, cfg.Panel.FamilyExampleCap)
	assert.Equal(t, "http://tutor:9000", cfg.Stream.ServerURL)
	assert.Equal(t, 90*time.Second, cfg.Stream.IdleTimeout)
	assert.Equal(t, []string{"llama3.2", "gpt-oss:20b"}, cfg.Ollama.AllowedModels())
	assert.Equal(t, "sentence", cfg.Ingest.Mode)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeYAML(t, validYAML))
	t.Setenv("LEXI_STREAM_IDLE_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Stream.IdleTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"thresholds inverted", func(c *Config) { c.Panel.HighThreshold = 3 }},
		{"zero cap", func(c *Config) { c.Panel.FormExampleCap = 0 }},
		{"negative idle timeout", func(c *Config) { c.Stream.IdleTimeout = -time.Second }},
		{"default model not allowed", func(c *Config) { c.Ollama.AllowedModelsRaw = "llama3.2" }},
		{"unknown analyzer", func(c *Config) { c.Ingest.Analyzer = "spacy" }},
		{"unknown mode", func(c *Config) { c.Ingest.Mode = "page" }},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
