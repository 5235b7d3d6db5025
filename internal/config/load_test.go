package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestLoad_ParsesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := "[workspace]\nsync_dir = \"/srv/docsync\"\n\n[sync]\nconflict_strategy = \"local\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/srv/docsync", cfg.Workspace.SyncDir)
	assert.Equal(t, "local", cfg.Sync.ConflictStrategy)
	// Untouched fields retain defaults.
	assert.Equal(t, "30s", cfg.Sync.AutoSyncInterval)
}

func TestLoad_ReturnsErrorOnInvalidValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := "[sync]\nconflict_strategy = \"bogus\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path, discardLogger())
	assert.Error(t, err)
}

func TestLoad_ReturnsErrorOnMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml", discardLogger())
	assert.Error(t, err)
}

func TestLoadOrDefault_FallsBackWhenFileMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_AppliesEnvThenCLIOverrides(t *testing.T) {
	env := EnvOverrides{SyncDir: "/env/dir", ServerURL: "https://env.example.com"}
	cli := CLIOverrides{SyncDir: "/cli/dir"}

	cfg, err := Resolve(env, cli, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "/cli/dir", cfg.Workspace.SyncDir)
	assert.Equal(t, "https://env.example.com", cfg.Server.BaseURL)
	assert.Equal(t, filepath.Join("/cli/dir", "docsync.db"), cfg.Workspace.DBPath)
}

func TestResolve_ExpandsHomeInSyncDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Resolve(EnvOverrides{}, CLIOverrides{}, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "docsync"), cfg.Workspace.SyncDir)
}

func TestResolveConfigPath_PrefersCLIOverEnvOverDefault(t *testing.T) {
	logger := discardLogger()

	assert.NotEmpty(t, ResolveConfigPath(EnvOverrides{}, CLIOverrides{}, logger))
	assert.Equal(t, "/env/config.toml", ResolveConfigPath(EnvOverrides{ConfigPath: "/env/config.toml"}, CLIOverrides{}, logger))
	assert.Equal(t, "/cli/config.toml", ResolveConfigPath(
		EnvOverrides{ConfigPath: "/env/config.toml"},
		CLIOverrides{ConfigPath: "/cli/config.toml"},
		logger,
	))
}
