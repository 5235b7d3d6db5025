package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RejectsUnknownConflictStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.ConflictStrategy = "overwrite"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "conflict_strategy")
}

func TestValidate_RejectsTooSmallAutoSyncInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.AutoSyncInterval = "100ms"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "auto_sync_interval")
}

func TestValidate_RejectsNegativeGCMaxOpAge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.GCMaxOpAge = "-1h"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "gc_max_op_age")
}

func TestValidate_RejectsZeroMaxOperationsPerFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.GCMaxOperationsPerFile = 0

	err := Validate(cfg)
	assert.ErrorContains(t, err, "gc_max_operations_per_file")
}

func TestValidate_RejectsInvalidQuotaBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.QuotaBytes = "not-a-size"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "quota_bytes")
}

func TestValidate_RejectsAggressiveGCThresholdOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.AggressiveGCThreshold = 1.5

	err := Validate(cfg)
	assert.ErrorContains(t, err, "aggressive_gc_threshold")
}

func TestValidate_RejectsZeroMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.MaxAttempts = 0

	err := Validate(cfg)
	assert.ErrorContains(t, err, "max_attempts")
}

func TestValidate_RejectsTooFewRequestsPerKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Credrotate.RequestsPerKey = 0

	err := Validate(cfg)
	assert.ErrorContains(t, err, "requests_per_key")
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogLevel = "verbose"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "log_level")
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogFormat = "xml"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "log_format")
}

func TestValidate_RejectsTooSmallConnectTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.ConnectTimeout = "1ms"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "connect_timeout")
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.ConflictStrategy = "bogus"
	cfg.Logging.LogLevel = "bogus"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "conflict_strategy")
	assert.ErrorContains(t, err, "log_level")
}

func TestValidateResolved_RejectsRelativeSyncDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace.SyncDir = "relative/path"

	err := ValidateResolved(cfg)
	assert.ErrorContains(t, err, "sync_dir")
}

func TestValidateResolved_AcceptsAbsoluteSyncDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace.SyncDir = "/home/user/docsync"

	assert.NoError(t, ValidateResolved(cfg))
}
