package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"story-server/internal/logger"
)

func TestNew_DefaultsAndInvalidLevel(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "not-a-level", Encoding: "xml"})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := logger.New(logger.Config{Level: "debug", Encoding: "json", OutputPath: path})
	require.NoError(t, err)

	log.Debug("poll attempt", zap.String("task_id", "task-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"task_id":"task-1"`)
	assert.Contains(t, string(data), `"level":"DEBUG"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNew_ConsoleEncodingAndLevelCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")

	log, err := logger.New(logger.Config{Level: " WARN ", Encoding: "Console", OutputPath: path})
	require.NoError(t, err)

	log.Info("skipped")
	log.Warn("registry full", zap.Int("sessions", 256))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "registry full")
	assert.NotContains(t, out, `"level"`)
}

func TestNew_UnwritableOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "app.log")

	_, err := logger.New(logger.Config{OutputPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log output")
}
