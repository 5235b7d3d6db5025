package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "~/docsync", cfg.Workspace.SyncDir)
	assert.Equal(t, "docsync.db", cfg.Workspace.DBPath)
	assert.Empty(t, cfg.Workspace.UserID)

	assert.Equal(t, "30s", cfg.Sync.AutoSyncInterval)
	assert.Equal(t, "merge", cfg.Sync.ConflictStrategy)
	assert.Equal(t, "168h", cfg.Sync.GCMaxOpAge)
	assert.Equal(t, "5m", cfg.Sync.GCMinInterval)
	assert.Equal(t, 1000, cfg.Sync.GCMaxOperationsPerFile)
	assert.Equal(t, "0", cfg.Sync.QuotaBytes)
	assert.Equal(t, 0.8, cfg.Sync.AggressiveGCThreshold)

	assert.Equal(t, 3, cfg.Server.MaxAttempts)
	assert.Equal(t, "100-M", cfg.Server.RateLimit)
	assert.Equal(t, ":8088", cfg.Server.ListenAddr)
	assert.Empty(t, cfg.Server.BaseURL)

	assert.Equal(t, 20, cfg.Credrotate.RequestsPerKey)
	assert.Equal(t, "1h", cfg.Credrotate.TTL)
	assert.Empty(t, cfg.Credrotate.Keys)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)

	assert.Equal(t, "10s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "60s", cfg.Network.DataTimeout)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
}
