// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Channel  ChannelConfig
	Verify   VerifyConfig
	Report   ReportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MigrateOnStart applies schema migrations at startup (default: true)
	MigrateOnStart bool `env:"DB_MIGRATE_ON_START" default:"true"`
}

// UploadConfig holds CSV upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// PreviewRows is the number of sample rows returned after upload (default: 5)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"5"`
}

// ChannelConfig holds the live verification channel settings.
type ChannelConfig struct {
	// URL is the WebSocket endpoint of the verification service.
	// Empty disables the live channel; events can still be posted over HTTP.
	URL string `env:"CHANNEL_URL" envAlt:"SOCKET_URL"`

	// Token is sent as a bearer token on connect.
	Token string `env:"CHANNEL_TOKEN"`

	// ReconnectAttempts is the dial budget per connect or reconnect (default: 5)
	ReconnectAttempts int `env:"CHANNEL_RECONNECT_ATTEMPTS" default:"5"`

	// ReconnectDelay is the fixed wait between attempts (default: 1s)
	ReconnectDelay time.Duration `env:"CHANNEL_RECONNECT_DELAY" default:"1s"`

	// HandshakeTimeout bounds one dial (default: 10s)
	HandshakeTimeout time.Duration `env:"CHANNEL_HANDSHAKE_TIMEOUT" default:"10s"`

	// EventName is the event carrying verification results (default: product_verified)
	EventName string `env:"CHANNEL_EVENT" default:"product_verified"`
}

// VerifyConfig holds reconciler settings.
type VerifyConfig struct {
	// Capacity is the maximum number of tracked items (default: 50)
	Capacity int `env:"VERIFY_ITEM_CAP" default:"50"`

	// IngestURL receives the applied records. Empty disables publishing.
	IngestURL string `env:"VERIFY_INGEST_URL"`

	// IngestTimeout bounds one publish request (default: 30s)
	IngestTimeout time.Duration `env:"VERIFY_INGEST_TIMEOUT" default:"30s"`
}

// Report modes.
const (
	ReportModeRemote = "remote"
	ReportModeLocal  = "local"
)

// ReportConfig holds report export settings.
type ReportConfig struct {
	// Mode is remote (report service) or local (xlsx rendered in process) (default: local)
	Mode string `env:"REPORT_MODE" default:"local"`

	// URL is the report service endpoint, required in remote mode.
	URL string `env:"REPORT_URL"`

	// Timeout bounds one report request (default: 60s)
	Timeout time.Duration `env:"REPORT_TIMEOUT" default:"60s"`

	// FilePrefix names downloaded reports (default: easysol-report)
	FilePrefix string `env:"REPORT_FILE_PREFIX" default:"easysol-report"`

	// MaxConcurrent is the maximum number of parallel exports (default: 2)
	MaxConcurrent int `env:"REPORT_MAX_CONCURRENT" default:"2"`

	// MaxWait is how long to wait for an export slot (default: 10s)
	MaxWait time.Duration `env:"REPORT_MAX_WAIT" default:"10s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for upload and export endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enforces API key auth on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ChannelEnabled reports whether a live channel endpoint is configured.
func (c *Config) ChannelEnabled() bool {
	return c.Channel.URL != ""
}
