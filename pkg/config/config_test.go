package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, 10, cfg.Sessions.MaxPerUser)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contentcal.yaml")
	data := `
providers:
  openai:
    model: gpt-4o-mini
    enabled: true
  ollama:
    model: llama3
    base_url: http://localhost:11434
pipeline:
  max_retries: 5
  step_timeout: 30s
  acceptable_quality: 0.8
sessions:
  max_per_user: 2
  stale_after: 2m
notifications:
  telegram:
    token: abc
    chat_id: 42
    enabled: true
content_policy:
  denied_terms: ["guaranteed results"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	t.Setenv("CONTENTCAL_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StepTimeout)
	assert.InDelta(t, 0.8, cfg.Pipeline.AcceptableQuality, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.BackoffInitial, "unset fields keep defaults")
	assert.Equal(t, 2, cfg.Sessions.MaxPerUser)
	assert.Equal(t, 2*time.Minute, cfg.Sessions.StaleAfter)
	assert.Equal(t, []string{"guaranteed results"}, cfg.ContentPolicy.DeniedTerms)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-test", p.APIKey)

	tg, ok := cfg.GetTelegramConfig()
	assert.True(t, ok)
	assert.Equal(t, int64(42), tg.ChatID)

	_, ok = cfg.GetDiscordConfig()
	assert.False(t, ok)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  acceptable_quality: 1.5\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
