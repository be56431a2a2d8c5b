package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/dsam/internal/model"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 7, cfg.MemoryWindowDays)
	assert.Equal(t, model.DetailBalanced, cfg.SummaryDetail)
	assert.Equal(t, 0.3, cfg.AssociationThreshold)
	assert.Equal(t, 10, cfg.MaxAssociations)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval())
	assert.Equal(t, 7*24*time.Hour, cfg.MemoryWindow())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsam.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"memory_window_days": 3, "summary_detail": "minimal", "max_associations": 4}`), 0o600))
	t.Setenv("DSAM_MAX_ASSOCIATIONS", "6")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MemoryWindowDays)
	assert.Equal(t, model.DetailMinimal, cfg.SummaryDetail)
	assert.Equal(t, 6, cfg.MaxAssociations)
}

func TestNormalizeClampsCompressionLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionLevel = 42
	cfg.Normalize()
	assert.Equal(t, 10, cfg.CompressionLevel)

	cfg.CompressionLevel = -1
	cfg.Normalize()
	assert.Equal(t, 1, cfg.CompressionLevel)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SummaryDetail = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CleanupSchedule = "not a cron"
	assert.Error(t, cfg.Validate())

	cfg.CleanupSchedule = "0 3 * * *"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsam.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory_window_days: 14\ncleanup_schedule: \"0 3 * * *\"\nenabled: false\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.MemoryWindowDays)
	assert.Equal(t, "0 3 * * *", cfg.CleanupSchedule)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.MaxAssociations, "unset keys keep defaults")
}
