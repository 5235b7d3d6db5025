package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written on first run.
// The common settings are present as commented-out defaults. Not every
// option is listed: the remaining [sync] GC/quota keys, user_agent, log_file,
// and the [credrotate] and [network] sections are omitted.
const configTemplate = `# docsync configuration

[workspace]
# sync_dir = "~/docsync"
# db_path  = "docsync.db"
# user_id  = ""

[sync]
# auto_sync_interval = "30s"
# conflict_strategy   = "merge"   # local, server, merge
# gc_max_op_age       = "168h"
# gc_min_interval     = "5m"

[server]
# base_url     = "https://sync.example.com"
# api_key      = ""
# max_attempts = 3
# listen_addr  = ":8088"
# rate_limit   = "100-M"

[logging]
# log_level  = "info"
# log_format = "auto"
`

// CreateDefaultConfig writes the commented default template to path. The
// write is atomic (temp file + rename) and parent directories are created
// as needed.
func CreateDefaultConfig(path string) error {
	slog.Info("creating config file", "path", path)

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
