package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-server/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Poller.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 256, cfg.Poller.MaxSessions)
	assert.Equal(t, "qwen-plus", cfg.AI.Model)
	assert.Equal(t, 800, cfg.AI.MaxTokens)
	assert.Equal(t, "1024*1024", cfg.Image.Size)
	assert.Equal(t, config.IllustrationModeInProcess, cfg.IllustrationMode)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.GetAllowedOrigins())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "5")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Poller.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Poller.Interval)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.GetAllowedOrigins())
}

func TestValidate(t *testing.T) {
	cfg := &config.Config{
		IllustrationMode: config.IllustrationModeQueue,
		AI:               config.AIConfig{ClientType: "mistral"},
		Poller:           config.PollerConfig{MaxAttempts: 0, Interval: time.Second, MaxSessions: -1},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "POLL_MAX_SESSIONS")
	assert.Contains(t, err.Error(), "RABBITMQ_URL")
	assert.Contains(t, err.Error(), "AI_CLIENT_TYPE")
}
