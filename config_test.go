package duckpg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":memory:", cfg.Path)
	assert.Equal(t, poolPresetStandardSize, cfg.Pool.Size)
	assert.Equal(t, RewriteAuto, cfg.RewriteArrays)
	assert.True(t, cfg.PrepareCache.Enabled)
	assert.Equal(t, defaultPrepareCacheSize, cfg.PrepareCache.Size)
	assert.True(t, cfg.IsInMemory())
	assert.False(t, cfg.IsMotherDuck())
}

func TestConfigValidate_RejectsBadPoolSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pool.Size = 0
	err := cfg.Validate()
	require.Error(t, err)
	de, ok := err.(*DriverError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeConfig, de.Code)
}

func TestConfigValidate_RejectsUnknownRewriteMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewriteArrays = "sometimes"
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_RejectsEmptyPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = ""
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_DefaultsMissingLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = nil
	require.NoError(t, cfg.Validate())
	assert.NotNil(t, cfg.Logger)
	assert.IsType(t, NopLogger{}, cfg.Logger)
}

func TestApplyPoolPreset(t *testing.T) {
	pc, ok := ApplyPoolPreset("standard")
	require.True(t, ok)
	assert.Equal(t, poolPresetStandardSize, pc.Size)

	_, ok = ApplyPoolPreset("nonexistent")
	assert.False(t, ok)
}

func TestConfig_MotherDuckPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = "md:my_db"
	cfg.MotherDuckToken = "secret"
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsMotherDuck())
	assert.False(t, cfg.IsInMemory())
}

func TestPrepareCacheConfig_FillsDefaultSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrepareCache = PrepareCacheConfig{Enabled: true}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultPrepareCacheSize, cfg.PrepareCache.Size)
}
