package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values that came from command-line flags, applied as
// the final layer of the override chain.
type CLIOverrides struct {
	ConfigPath string
	SyncDir    string
	ServerURL  string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", "path", path)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports a zero-config
// first run: users can start syncing without creating a config file.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags, returning
// the fully resolved Config ready for use by the agent or server.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfgPath := ResolveConfigPath(env, cli, logger)

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if env.SyncDir != "" {
		cfg.Workspace.SyncDir = env.SyncDir
	}

	if cli.SyncDir != "" {
		cfg.Workspace.SyncDir = cli.SyncDir
	}

	if env.ServerURL != "" {
		cfg.Server.BaseURL = env.ServerURL
	}

	if cli.ServerURL != "" {
		cfg.Server.BaseURL = cli.ServerURL
	}

	if env.APIKey != "" {
		cfg.Server.APIKey = env.APIKey
	}

	if len(env.CredentialKeys) > 0 {
		cfg.Credrotate.Keys = env.CredentialKeys
	}

	cfg.Workspace.SyncDir, err = expandHome(cfg.Workspace.SyncDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sync_dir: %w", err)
	}

	if !filepath.IsAbs(cfg.Workspace.DBPath) {
		cfg.Workspace.DBPath = filepath.Join(cfg.Workspace.SyncDir, cfg.Workspace.DBPath)
	}

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ResolveConfigPath determines the config file path using the three-layer
// priority: CLI flag > environment variable > platform default.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) string {
	cfgPath := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		source = "env"
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
		source = "cli"
	}

	logger.Debug("config path resolved", "path", cfgPath, "source", source)

	return cfgPath
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
