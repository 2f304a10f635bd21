// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultBaseURL is used for any upstream whose base URL is not configured.
const DefaultBaseURL = "http://localhost:8080"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/courtrec-gateway/config.toml",
	"configs/config.toml",
}

// reservedRoutes are mounted by the gateway and cannot host the metrics endpoint.
var reservedRoutes = []string{"/api/audit", "/api/backend", "/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config         string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host           string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port           int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	AuditBaseURL   string `kong:"name='audit-base-url',help='Audit service base URL (overrides config).',env='AUDIT_BASE_URL'"`
	BackendBaseURL string `kong:"name='backend-base-url',help='Backend service base URL (overrides config).',env='BACKEND_BASE_URL'"`
	LogLevel       string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	Serve   ServeCmd   `kong:"cmd,default='1',help='Run the forwarding gateway.'"`
	Session SessionCmd `kong:"cmd,help='Watch the dashboard session through a running gateway.'"`
}

// ServeCmd runs the gateway. It carries no flags of its own.
type ServeCmd struct{}

// SessionCmd drives a session container against a running gateway.
type SessionCmd struct {
	Gateway  string `kong:"help='Gateway base URL.',default='http://127.0.0.1:8000',env='GATEWAY_URL'"`
	Email    string `kong:"help='Log in with this email before watching.',env='SESSION_EMAIL'"`
	Password string `kong:"help='Password for --email.',env='SESSION_PASSWORD'"`
	Logout   bool   `kong:"help='Log out when the watcher stops.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Audit    AuditConfig    `toml:"audit"`
	Backend  BackendConfig  `toml:"backend"`
	CORS     CORSConfig     `toml:"cors"`
	Session  SessionConfig  `toml:"session"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds settings shared by both upstream connections.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"` // 0 leaves the request unbounded
	IdleConnections int `toml:"idle_connections"`
}

// AuditConfig points at the audit-logging service.
type AuditConfig struct {
	BaseURL string `toml:"base_url"`
}

// BackendConfig points at the main backend service.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`

	// APIFallback retries 404 reads under an extra /api prefix. Defaults to true.
	APIFallback *bool `toml:"api_fallback"`
}

// CORSConfig configures the CORS headers the gateway sets for browsers.
// CORS handling is disabled when Origins is empty.
type CORSConfig struct {
	Origins       []string `toml:"origins"`
	Credentialed  *bool    `toml:"credentialed"`
	MaxAgeSeconds int      `toml:"max_age_seconds"`
}

// SessionConfig holds the gateway paths used by the session container.
type SessionConfig struct {
	PollIntervalMS  int    `toml:"poll_interval_ms"`
	MePath          string `toml:"me_path"`
	LoginPath       string `toml:"login_path"`
	LogoutPath      string `toml:"logout_path"`
	AuditEventsPath string `toml:"audit_events_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/courtrec-gateway/config.toml then configs/config.toml, and falls back to
// defaults plus environment overrides when neither exists.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.AuditBaseURL != "" {
		c.Audit.BaseURL = cli.AuditBaseURL
	}
	if cli.BackendBaseURL != "" {
		c.Backend.BaseURL = cli.BackendBaseURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Base URLs are optional; when present they must be absolute http(s) URLs.
	if err := validateBaseURL("audit.base_url", c.Audit.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("backend.base_url", c.Backend.BaseURL); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if c.CORS.MaxAgeSeconds < 0 {
		return fmt.Errorf("cors.max_age_seconds must be non-negative; got %d", c.CORS.MaxAgeSeconds)
	}
	if c.Session.PollIntervalMS < 0 {
		return fmt.Errorf("session.poll_interval_ms must be non-negative; got %d", c.Session.PollIntervalMS)
	}

	for key, p := range map[string]string{
		"session.me_path":           c.Session.MePath,
		"session.login_path":        c.Session.LoginPath,
		"session.logout_path":       c.Session.LogoutPath,
		"session.audit_events_path": c.Session.AuditEventsPath,
	} {
		if p != "" && p[0] != '/' {
			return fmt.Errorf("%s must start with '/'; got %q", key, p)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateBaseURL(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", key, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%s must not carry a query or fragment; got %q", key, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000). The upstream
// timeout is the exception: zero keeps requests unbounded.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 100 * 1024 * 1024 // 100 MB, recordings are uploaded through the backend route
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}

	c.Audit.BaseURL = normalizeBaseURL(c.Audit.BaseURL)
	c.Backend.BaseURL = normalizeBaseURL(c.Backend.BaseURL)
	if c.Backend.APIFallback == nil {
		enabled := true
		c.Backend.APIFallback = &enabled
	}
	if c.CORS.Credentialed == nil {
		credentialed := true
		c.CORS.Credentialed = &credentialed
	}

	if c.Session.PollIntervalMS == 0 {
		c.Session.PollIntervalMS = 1000
	}
	if c.Session.MePath == "" {
		c.Session.MePath = "/api/backend/auth/me"
	}
	if c.Session.LoginPath == "" {
		c.Session.LoginPath = "/api/backend/auth/login"
	}
	if c.Session.LogoutPath == "" {
		c.Session.LogoutPath = "/api/backend/auth/logout"
	}
	if c.Session.AuditEventsPath == "" {
		c.Session.AuditEventsPath = "/api/audit/events"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func normalizeBaseURL(raw string) string {
	if raw == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(raw, "/")
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PollInterval returns the token poll interval.
func (c *SessionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// FallbackEnabled reports whether the backend /api fallback is on.
func (c *BackendConfig) FallbackEnabled() bool {
	return c.APIFallback == nil || *c.APIFallback
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("stat config file", "path", c.filePath, "err", err)
		}
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
