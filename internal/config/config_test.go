package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PULSE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 5*time.Second, cfg.WorkerInterval)
	assert.DirExists(t, cfg.ReportsDir)
	assert.False(t, cfg.Triggers.Enabled)
	assert.False(t, cfg.Reports.UploadEnabled)
	assert.NoError(t, cfg.Weights.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PULSE_DATA_DIR", t.TempDir())
	t.Setenv("PULSE_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("WORKER_INTERVAL_SECONDS", "1")
	t.Setenv("TRIGGERS_ENABLED", "true")
	t.Setenv("TRIGGER_DAILY_RECALC_CRON", "0 7 * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, time.Second, cfg.WorkerInterval)
	assert.True(t, cfg.Triggers.Enabled)
	assert.Equal(t, "0 7 * * *", cfg.Triggers.DailyRecalcSpec)
}

func TestLoadRejectsInvalidWeights(t *testing.T) {
	t.Setenv("PULSE_DATA_DIR", t.TempDir())
	t.Setenv("WEIGHT_MOMENTUM", "0.9")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PULSE_DATA_DIR", t.TempDir())
	t.Setenv("PULSE_PORT", "not-a-port")
	t.Setenv("DEV_MODE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.Port)
	assert.False(t, cfg.DevMode)
}
