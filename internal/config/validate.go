package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minAutoSyncInterval = time.Second
	minGCMinInterval    = time.Minute
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
	minRequestsPerKey   = 1
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCredrotate(&cfg.Credrotate)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateResolved checks cross-field constraints on a fully resolved
// Config. Unlike Validate, which checks raw config-file values, this runs
// after the override chain (defaults -> file -> env -> CLI) has been
// applied, catching constraints that only make sense on the merged result.
func ValidateResolved(cfg *Config) error {
	var errs []error

	if cfg.Workspace.SyncDir != "" && !filepath.IsAbs(cfg.Workspace.SyncDir) {
		errs = append(errs, fmt.Errorf("sync_dir: must be absolute after expansion, got %q", cfg.Workspace.SyncDir))
	}

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("auto_sync_interval", s.AutoSyncInterval, minAutoSyncInterval)...)
	errs = append(errs, validateConflictStrategy(s.ConflictStrategy)...)
	errs = append(errs, validateDurationNonNeg("gc_max_op_age", s.GCMaxOpAge)...)
	errs = append(errs, validateDurationMin("gc_min_interval", s.GCMinInterval, minGCMinInterval)...)

	if s.GCMaxOperationsPerFile < 1 {
		errs = append(errs, fmt.Errorf("gc_max_operations_per_file: must be >= 1, got %d", s.GCMaxOperationsPerFile))
	}

	if s.QuotaBytes != "" {
		if _, err := ParseSize(s.QuotaBytes); err != nil {
			errs = append(errs, fmt.Errorf("quota_bytes: %w", err))
		}
	}

	if s.AggressiveGCThreshold <= 0 || s.AggressiveGCThreshold > 1 {
		errs = append(errs, fmt.Errorf("aggressive_gc_threshold: must be in (0, 1], got %v", s.AggressiveGCThreshold))
	}

	return errs
}

var validConflictStrategies = map[string]bool{
	"local":  true,
	"server": true,
	"merge":  true,
}

func validateConflictStrategy(s string) []error {
	if !validConflictStrategies[s] {
		return []error{fmt.Errorf("conflict_strategy: must be one of local, server, merge; got %q", s)}
	}

	return nil
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts: must be >= 1, got %d", s.MaxAttempts))
	}

	return errs
}

func validateCredrotate(c *CredrotateConfig) []error {
	var errs []error

	if c.RequestsPerKey < minRequestsPerKey {
		errs = append(errs, fmt.Errorf("requests_per_key: must be >= %d, got %d", minRequestsPerKey, c.RequestsPerKey))
	}

	errs = append(errs, validateDurationNonNeg("ttl", c.TTL)...)

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}
