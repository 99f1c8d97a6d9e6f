package config

import "time"

// Config is the root configuration for craftlist.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Poll      PollConfig      `yaml:"poll"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	LogFile     string   `yaml:"log_file"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type AuthConfig struct {
	APITokens []APITokenEntry `yaml:"api_tokens"`
}

// APITokenEntry grants write access to the holder of the token whose
// SHA-256 hex digest is TokenHash. Writes are attributed to UserID.
type APITokenEntry struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"token_hash"`
	UserID    int64  `yaml:"user_id"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type BroadcastConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	BufferSize   int           `yaml:"buffer_size"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type MCPConfig struct {
	Enabled        bool          `yaml:"enabled"`
	NotifyDebounce time.Duration `yaml:"notify_debounce"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			LogLevel:  "info",
			LogFormat: "json",
		},
		Database: DatabaseConfig{
			Path: "~/.config/craftlist/craftlist.db",
		},
		Poll: PollConfig{
			Interval: 6 * time.Second,
		},
		Broadcast: BroadcastConfig{
			PingInterval: 10 * time.Second,
			BufferSize:   10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 200,
			Burst:             100,
		},
		MCP: MCPConfig{
			Enabled:        true,
			NotifyDebounce: 30 * time.Second,
		},
	}
}
