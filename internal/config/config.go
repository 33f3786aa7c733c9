// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server      ServerConfig
	Analysis    AnalysisConfig
	Upload      UploadConfig
	Session     SessionConfig
	Rate        RateLimitConfig
	Security    SecurityConfig
	Logging     LoggingConfig
	Diagnostics DiagnosticsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AnalysisConfig holds settings for the remote manuscript analysis service.
type AnalysisConfig struct {
	// ServiceURL is the base URL of the analysis service (default: http://localhost:8000)
	ServiceURL string `env:"ANALYSIS_SERVICE_URL" envAlt:"ANALYSIS_URL" default:"http://localhost:8000"`

	// Timeout bounds a single analysis request. Zero waits for the network
	// layer to settle (default: 0s)
	Timeout time.Duration `env:"ANALYSIS_TIMEOUT" default:"0s"`

	// MaxResponseSize caps the response body read from the service (default: 64MB)
	MaxResponseSize int64 `env:"ANALYSIS_MAX_RESPONSE_SIZE" default:"64MiB" unit:"bytes"`

	// APIToken is sent as a bearer token when set
	APIToken string `env:"ANALYSIS_API_TOKEN"`

	// MaxConcurrent caps analysis requests in flight across all sessions.
	// Zero means no cap (default: 0)
	MaxConcurrent int `env:"ANALYSIS_MAX_CONCURRENT" default:"0"`

	// QueueWait bounds how long a request waits for a slot. Zero waits
	// until the request is abandoned (default: 0s)
	QueueWait time.Duration `env:"ANALYSIS_QUEUE_WAIT" default:"0s"`
}

// UploadConfig holds manuscript acquisition settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted manuscript size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"50MiB" unit:"bytes"`
}

// SessionConfig holds per-browser session settings.
type SessionConfig struct {
	// CookieName names the session cookie (default: frondo_session)
	CookieName string `env:"SESSION_COOKIE_NAME" default:"frondo_session"`

	// IdleTTL is how long an untouched session is kept alive (default: 30m)
	IdleTTL time.Duration `env:"SESSION_IDLE_TTL" default:"30m"`

	// SweepInterval is how often idle sessions are collected (default: 1m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"1m"`

	// SecureCookie marks the session cookie Secure (default: false)
	SecureCookie bool `env:"SESSION_SECURE_COOKIE" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// DiagnosticsConfig holds settings for the out-of-band failure sink.
type DiagnosticsConfig struct {
	// WebhookURL receives failure diagnostics as JSON when set
	WebhookURL string `env:"DIAGNOSTICS_WEBHOOK_URL"`

	// WebhookTimeout bounds a single webhook delivery (default: 5s)
	WebhookTimeout time.Duration `env:"DIAGNOSTICS_WEBHOOK_TIMEOUT" default:"5s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
