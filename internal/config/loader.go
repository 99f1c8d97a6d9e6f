package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/craftlist/craftlist.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "craftlist", "craftlist.yaml"))
	}

	paths = append(paths, "craftlist.yaml")

	if envPath := os.Getenv("CRAFTLIST_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/craftlist/craftlist.yaml < ~/.config/craftlist/craftlist.yaml < ./craftlist.yaml < $CRAFTLIST_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CRAFTLIST_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CRAFTLIST_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRAFTLIST_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CRAFTLIST_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("CRAFTLIST_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CRAFTLIST_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CRAFTLIST_POLL_INTERVAL: %w", err)
		}
		cfg.Poll.Interval = d
	}
	return nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Server.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("server.log_format must be json or text, got %q", cfg.Server.LogFormat)
	}

	if cfg.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s, got %s", cfg.Poll.Interval)
	}

	if cfg.Broadcast.PingInterval <= 0 {
		return fmt.Errorf("broadcast.ping_interval must be positive")
	}

	if cfg.Broadcast.BufferSize < 1 {
		return fmt.Errorf("broadcast.buffer_size must be at least 1")
	}

	if cfg.RateLimit.RequestsPerMinute < 1 || cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute and rate_limit.burst must be at least 1")
	}

	for i, tok := range cfg.Auth.APITokens {
		if tok.Name == "" {
			return fmt.Errorf("auth.api_tokens[%d].name is required", i)
		}
		if b, err := hex.DecodeString(tok.TokenHash); err != nil || len(b) != 32 {
			return fmt.Errorf("auth.api_tokens[%d].token_hash must be a hex SHA-256 digest (see craftlist hash-token)", i)
		}
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)

	return nil
}
