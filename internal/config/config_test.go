package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.Fleet.BotCount)
	assert.Equal(t, int64(180_000), cfg.Skills.SubgoalExecTimeoutMs)
	assert.Equal(t, int64(120_000), cfg.Reflex.NightfallDedupMs)
	assert.Equal(t, 20, cfg.Reflex.StallTicks)
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")

	cfg := DefaultConfig()
	cfg.Fleet.BotCount = 3
	cfg.Base.X = 120
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Fleet.BotCount)
	assert.Equal(t, 120.0, loaded.Base.X)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Skills.MaxConcurrentSkills, cfg.Skills.MaxConcurrentSkills)
}

func TestValidate_RejectsOutOfRangeBotCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fleet.BotCount = 9
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsHeartbeatGELease(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Coordination.LockHeartbeatMs = cfg.Coordination.LockLeaseMs
	assert.Error(t, cfg.Validate())
}
