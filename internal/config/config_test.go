package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FINWATCH_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "Europe/Helsinki", cfg.Timezone)
	assert.Equal(t, 4, cfg.SchedulerWorkers)
	assert.Equal(t, 10000, cfg.EventHistorySize)
	assert.Equal(t, 4096, cfg.EventQueueSize)
	assert.Equal(t, 10*time.Second, cfg.DrainTimeout)
	assert.Equal(t, 100000.0, cfg.SavingsTarget)
	assert.Equal(t, 5.0, cfg.SavingsYears)
	assert.Equal(t, 9100, cfg.MetricsPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FINWATCH_DATA_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")
	t.Setenv("SCHEDULER_WORKERS", "8")
	t.Setenv("DRAIN_TIMEOUT_SECONDS", "30")
	t.Setenv("SAVINGS_TARGET", "250000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 8, cfg.SchedulerWorkers)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
	assert.Equal(t, 250000.0, cfg.SavingsTarget)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("bad timezone", func(t *testing.T) {
		t.Setenv("FINWATCH_DATA_DIR", t.TempDir())
		t.Setenv("SCHEDULER_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero workers", func(t *testing.T) {
		t.Setenv("FINWATCH_DATA_DIR", t.TempDir())
		t.Setenv("SCHEDULER_WORKERS", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative savings target", func(t *testing.T) {
		t.Setenv("FINWATCH_DATA_DIR", t.TempDir())
		t.Setenv("SAVINGS_TARGET", "-1")
		_, err := Load()
		assert.Error(t, err)
	})
}
