package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after the override chain
// (defaults -> file -> env -> CLI) has been applied.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	renderWorkspaceSection(ew, &cfg.Workspace)
	renderSyncSection(ew, &cfg.Sync)
	renderServerSection(ew, &cfg.Server)
	renderCredrotateSection(ew, &cfg.Credrotate)
	renderLoggingSection(ew, &cfg.Logging)
	renderNetworkSection(ew, &cfg.Network)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderWorkspaceSection(ew *errWriter, w *WorkspaceConfig) {
	ew.printf("[workspace]\n")
	ew.printf("  sync_dir = %q\n", w.SyncDir)
	ew.printf("  db_path  = %q\n", w.DBPath)

	if w.UserID != "" {
		ew.printf("  user_id  = %q\n", w.UserID)
	}

	ew.printf("\n")
}

func renderSyncSection(ew *errWriter, s *SyncConfig) {
	ew.printf("[sync]\n")
	ew.printf("  auto_sync_interval        = %q\n", s.AutoSyncInterval)
	ew.printf("  conflict_strategy         = %q\n", s.ConflictStrategy)
	ew.printf("  gc_max_op_age             = %q\n", s.GCMaxOpAge)
	ew.printf("  gc_min_interval           = %q\n", s.GCMinInterval)
	ew.printf("  gc_max_operations_per_file = %d\n", s.GCMaxOperationsPerFile)
	ew.printf("  quota_bytes               = %q\n", s.QuotaBytes)
	ew.printf("  aggressive_gc_threshold   = %v\n", s.AggressiveGCThreshold)
	ew.printf("\n")
}

func renderServerSection(ew *errWriter, s *ServerConfig) {
	ew.printf("[server]\n")
	ew.printf("  base_url     = %q\n", s.BaseURL)
	ew.printf("  max_attempts = %d\n", s.MaxAttempts)
	ew.printf("  rate_limit   = %q\n", s.RateLimit)
	ew.printf("  listen_addr  = %q\n", s.ListenAddr)
	ew.printf("\n")
}

func renderCredrotateSection(ew *errWriter, c *CredrotateConfig) {
	ew.printf("[credrotate]\n")
	ew.printf("  requests_per_key = %d\n", c.RequestsPerKey)
	ew.printf("  ttl              = %q\n", c.TTL)
	ew.printf("  pool_size        = %d\n", len(c.Keys))
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)

	if l.LogFile != "" {
		ew.printf("  log_file   = %q\n", l.LogFile)
	}

	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", n.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", n.DataTimeout)
	ew.printf("  user_agent      = %q\n", n.UserAgent)
}
