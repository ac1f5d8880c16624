// Package config loads runtime settings for the chat coordinator from the
// process environment and restores safe defaults for anything left unset or
// out of range.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers understood by the store package.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// RateLimitConfig defines the parameters for per-connection frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"           envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// HistoryConfig bounds get_message_history requests.
type HistoryConfig struct {
	DefaultLimit int `env:"HISTORY_DEFAULT_LIMIT" envDefault:"50"`
	MaxLimit     int `env:"HISTORY_MAX_LIMIT"     envDefault:"500"`
}

// StoreConfig selects and configures the durable message store.
type StoreConfig struct {
	Driver        string        `env:"STORE_DRIVER"   envDefault:"sqlite"`
	SQLitePath    string        `env:"SQLITE_PATH"    envDefault:"chat.db"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisAddr     string        `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"       envDefault:"0"`
	Timeout       time.Duration `env:"STORE_TIMEOUT"  envDefault:"5s"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string        `env:"SERVER_PORT"      envDefault:":8080"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE" envDefault:"256"`
	Room            string        `env:"CHAT_ROOM"        envDefault:"main"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	RateLimit RateLimitConfig
	History   HistoryConfig
	Store     StoreConfig
	Log       LogConfig

	// AllowAllOrigins is derived from a "*" entry in AllowedOrigins.
	AllowAllOrigins bool
}

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Sanitize(Config{})
}

// Load parses the process environment into a sanitized Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return Sanitize(cfg), nil
}

// Sanitize fills zero or invalid values with defaults and normalizes origins.
func Sanitize(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	cfg.Room = strings.TrimSpace(cfg.Room)
	if cfg.Room == "" {
		cfg.Room = "main"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.History.DefaultLimit <= 0 {
		cfg.History.DefaultLimit = 50
	}
	if cfg.History.MaxLimit <= 0 {
		cfg.History.MaxLimit = 500
	}
	if cfg.History.DefaultLimit > cfg.History.MaxLimit {
		cfg.History.DefaultLimit = cfg.History.MaxLimit
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverSQLite
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "chat.db"
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Store.Timeout <= 0 {
		cfg.Store.Timeout = 5 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"http://localhost:8080"}
	}
	origins, allowAll := NormalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = origins
	cfg.AllowAllOrigins = cfg.AllowAllOrigins || allowAll

	return cfg
}

// Validate reports settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverRedis:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NormalizeOrigins lowercases scheme and host of every origin, drops invalid
// entries and reports whether a "*" wildcard was present.
func NormalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := NormalizeOrigin(trimmed)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

// NormalizeOrigin reduces an origin to lowercase scheme://host.
func NormalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
