// Package config loads the service configuration from environment variables
// and validates it on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Upload    UploadConfig
	Session   SessionConfig
	Converter ConverterConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so the progress stream is not cut off
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-streaming requests
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// Driver is postgres or sqlite
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// URL is the PostgreSQL DSN, or the SQLite file path
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"cablemap.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RedisConfig addresses the optional cable listing cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD" envAlt:"REDIS_PASS"`
	DB       int           `env:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" default:"5m"`
}

// UploadConfig bounds uploads and concurrent conversions.
type UploadConfig struct {
	// MaxFileSize is the largest accepted document in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the number of conversions allowed to run at once
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a conversion waits for a slot
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// SessionConfig holds edit session lifetime and progress settings.
type SessionConfig struct {
	IdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"2h"`
	ReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" default:"5m"`
	ProgressTick time.Duration `env:"PROGRESS_TICK" default:"250ms"`

	// ProgressCap is the percentage the estimate approaches before completion
	ProgressCap int `env:"PROGRESS_CAP" default:"95"`

	CookieSecure bool `env:"SESSION_COOKIE_SECURE" default:"false"`
}

// ConverterConfig points at the external spreadsheet converter.
type ConverterConfig struct {
	// RemoteURL enables xlsx uploads when set
	RemoteURL string        `env:"XLSX_CONVERTER_URL"`
	Timeout   time.Duration `env:"XLSX_CONVERTER_TIMEOUT" default:"60s"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for the upload endpoint
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
