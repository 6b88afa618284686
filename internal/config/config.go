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

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/baserow-proxy/config.toml",
	"configs/config.toml",
}

// dotEnvFiles are loaded (if present) before flags are parsed. Earlier files win
// because godotenv never overrides a variable that is already set.
var dotEnvFiles = []string{".env.local", ".env"}

// placeholderToken is the value shipped in the example config.
const placeholderToken = "YOUR_API_TOKEN_HERE"

// Routes owned by the proxy itself; neither the mount path nor the metrics path may shadow them.
var reservedRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host         string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BaserowURL   string `kong:"name='baserow-url',help='Baserow base URL (overrides config).',env='BASEROW_API_URL'"`
	BaserowToken string `kong:"name='baserow-token',help='Baserow database token (overrides config).',env='BASEROW_API_TOKEN'"`
	LogLevel     string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Baserow  BaserowConfig  `toml:"baserow"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Upstream UpstreamConfig `toml:"upstream"`
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

// BaserowConfig holds the upstream location and the server-held token.
// Both may be empty at load time; requests then fail with a configuration error.
type BaserowConfig struct {
	APIURL   string `toml:"api_url"`
	APIToken string `toml:"api_token"`
	Watch    bool   `toml:"watch"`
}

// ProxyConfig holds settings of the forwarding route.
type ProxyConfig struct {
	MountPath        string `toml:"mount_path"`
	ResponseMaxBytes int64  `toml:"response_max_bytes"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
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

// LoadDotEnv loads variables from .env.local and .env in the working directory.
// Missing files are ignored; variables already present in the environment win.
// A file that exists but cannot be read or parsed is an error.
func LoadDotEnv() error {
	return loadDotEnvFiles(dotEnvFiles)
}

func loadDotEnvFiles(files []string) error {
	var errs []error
	for _, f := range files {
		// godotenv.Load stops at the first missing file, so load one at a time.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("load %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/baserow-proxy/config.toml then configs/config.toml. Finding nothing is
// not an error: the proxy can run from flags and environment alone.
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
	if cli.BaserowURL != "" {
		c.Baserow.APIURL = cli.BaserowURL
	}
	if cli.BaserowToken != "" {
		c.Baserow.APIToken = cli.BaserowToken
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Baserow.APIToken == placeholderToken {
		return fmt.Errorf("baserow.api_token contains placeholder value; set a real token or BASEROW_API_TOKEN")
	}

	if c.Baserow.APIURL != "" {
		u, err := url.Parse(c.Baserow.APIURL)
		if err != nil {
			return fmt.Errorf("baserow.api_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("baserow.api_url must use http or https; got %q", c.Baserow.APIURL)
		}
		if u.Host == "" {
			return fmt.Errorf("baserow.api_url must include a host; got %q", c.Baserow.APIURL)
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("baserow.api_url must not carry a query or fragment; got %q", c.Baserow.APIURL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Proxy.ResponseMaxBytes < 0 {
		return fmt.Errorf("proxy.response_max_bytes must be non-negative; got %d", c.Proxy.ResponseMaxBytes)
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

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Route paths.
	mount := c.Proxy.MountPath
	if mount != "" {
		if mount[0] != '/' {
			return fmt.Errorf("proxy.mount_path must start with '/'; got %q", mount)
		}
		if mount == "/" || strings.HasSuffix(mount, "/") {
			return fmt.Errorf("proxy.mount_path must not end with '/'; got %q", mount)
		}
		if r := conflictingRoute(mount, reservedRoutes); r != "" {
			return fmt.Errorf("proxy.mount_path %q conflicts with reserved route %q", mount, r)
		}
	} else {
		mount = defaultMountPath
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if r := conflictingRoute(p, append([]string{mount}, reservedRoutes...)); r != "" {
			return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, r)
		}
	}

	return nil
}

// conflictingRoute returns the first reserved route that p equals or nests under.
func conflictingRoute(p string, reserved []string) string {
	for _, r := range reserved {
		if p == r || strings.HasPrefix(p, r+"/") {
			return r
		}
	}
	return ""
}

const defaultMountPath = "/api/baserow"

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Proxy.MountPath == "" {
		c.Proxy.MountPath = defaultMountPath
	}
	if c.Proxy.ResponseMaxBytes == 0 {
		c.Proxy.ResponseMaxBytes = 10 * 1024 * 1024
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
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

// FilePath returns the config file in use, or empty string when running from flags/env only.
func (c *Config) FilePath() string {
	return c.filePath
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MissingFields lists the Baserow settings that are not set, by config key.
func (b BaserowConfig) MissingFields() []string {
	var missing []string
	if b.APIURL == "" {
		missing = append(missing, "baserow.api_url")
	}
	if b.APIToken == "" {
		missing = append(missing, "baserow.api_token")
	}
	return missing
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// WarnMissingCredentials logs once at startup when proxy requests are bound to fail.
func (c *Config) WarnMissingCredentials(logger *slog.Logger) {
	if missing := c.Baserow.MissingFields(); len(missing) > 0 {
		logger.Warn("baserow upstream not configured; proxy requests will return 500",
			"missing", strings.Join(missing, ","),
		)
	}
}
