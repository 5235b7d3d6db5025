// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the docsync agent and server.
package config

// Config is the top-level configuration structure for one workspace: a
// local sync root bound to one server and one conflict policy. Unlike a
// multi-account client, docsync has exactly one active workspace per
// config file — there is no profile or drive section to select between.
type Config struct {
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Sync       SyncConfig       `toml:"sync"`
	Server     ServerConfig     `toml:"server"`
	Credrotate CredrotateConfig `toml:"credrotate"`
	Logging    LoggingConfig    `toml:"logging"`
	Network    NetworkConfig    `toml:"network"`
}

// WorkspaceConfig identifies the local sync root and its durable store.
type WorkspaceConfig struct {
	SyncDir string `toml:"sync_dir"`
	DBPath  string `toml:"db_path"`
	UserID  string `toml:"user_id"`
}

// SyncConfig controls the sync engine's auto-sync cadence, conflict
// handling, and operation-log garbage collection.
type SyncConfig struct {
	AutoSyncInterval       string  `toml:"auto_sync_interval"`
	ConflictStrategy       string  `toml:"conflict_strategy"`
	GCMaxOpAge             string  `toml:"gc_max_op_age"`
	GCMinInterval          string  `toml:"gc_min_interval"`
	GCMaxOperationsPerFile int     `toml:"gc_max_operations_per_file"`
	QuotaBytes             string  `toml:"quota_bytes"`
	AggressiveGCThreshold  float64 `toml:"aggressive_gc_threshold"`
}

// ServerConfig points the sync agent at its server and bounds its HTTP
// retry behavior, or configures the server's own listen address.
type ServerConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	MaxAttempts int    `toml:"max_attempts"`
	RateLimit   string `toml:"rate_limit"` // formatted per ulule/limiter, e.g. "100-M"
	ListenAddr  string `toml:"listen_addr"`
}

// CredrotateConfig configures the server-side credential rotator (C11).
// Keys is the upstream secret pool; it is populated from the
// DOCSYNC_CREDENTIAL_KEYS environment variable rather than committed to
// a config file.
type CredrotateConfig struct {
	Keys           []string `toml:"-"`
	RequestsPerKey int      `toml:"requests_per_key"`
	TTL            string   `toml:"ttl"`
	RedisAddr      string   `toml:"redis_addr"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client timeouts.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}
