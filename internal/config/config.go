// Package config implements TOML configuration loading with environment
// variable overrides. Precedence: defaults -> config file -> environment ->
// CLI flags (flags are applied by the CLI layer).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pbirest/pbirest-go/internal/powerbi"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	API     APIConfig     `toml:"api"`
	Logging LoggingConfig `toml:"logging"`
	Monitor MonitorConfig `toml:"monitor"`
}

// AuthConfig selects the credential. A non-empty Token wins over the
// service principal triple.
type AuthConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Token        string `toml:"token"`
}

// APIConfig controls the HTTP session.
type APIConfig struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RequestBurst      int     `toml:"request_burst"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// MonitorConfig controls the periodic refresh monitor.
type MonitorConfig struct {
	Interval   string `toml:"interval"`
	WebhookURL string `toml:"webhook_url"`
	Title      string `toml:"title"`
}

// defaults returns the baseline configuration before any file or
// environment values are applied.
func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           powerbi.DefaultBaseURL,
			RequestsPerSecond: 10,
			RequestBurst:      20,
		},
		Logging: LoggingConfig{Level: "info"},
		Monitor: MonitorConfig{
			Interval: "15m",
			Title:    "Refresh status",
		},
	}
}

// DefaultPath returns the per-user config file location,
// $XDG_CONFIG_HOME/pbirest/config.toml or the platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config dir: %w", err)
	}

	return filepath.Join(dir, "pbirest", "config.toml"), nil
}

// Load reads the config file at path, applying defaults and then
// environment overrides. A missing file is not an error: defaults plus
// environment are returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	default:
		if _, decodeErr := toml.Decode(string(data), cfg); decodeErr != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, decodeErr)
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

// Environment variable names recognized by applyEnv.
const (
	EnvTenantID     = "PBIREST_TENANT_ID"
	EnvClientID     = "PBIREST_CLIENT_ID"
	EnvClientSecret = "PBIREST_CLIENT_SECRET"
	EnvToken        = "PBIREST_TOKEN"
	EnvBaseURL      = "PBIREST_BASE_URL"
)

// applyEnv overlays environment variables onto cfg. Environment wins over
// the config file so secrets can stay out of it.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvTenantID); v != "" {
		cfg.Auth.TenantID = v
	}

	if v := os.Getenv(EnvClientID); v != "" {
		cfg.Auth.ClientID = v
	}

	if v := os.Getenv(EnvClientSecret); v != "" {
		cfg.Auth.ClientSecret = v
	}

	if v := os.Getenv(EnvToken); v != "" {
		cfg.Auth.Token = v
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
}

// Credential builds the powerbi credential from the auth section. A static
// token takes precedence; otherwise the full service principal triple is
// required.
func (c *Config) Credential() (powerbi.Credential, error) {
	if c.Auth.Token != "" {
		return powerbi.StaticToken{Value: c.Auth.Token}, nil
	}

	if c.Auth.TenantID == "" || c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
		return nil, errors.New("config: no credentials: set auth.token or the tenant_id/client_id/client_secret triple")
	}

	return powerbi.ServicePrincipal{
		TenantID:     c.Auth.TenantID,
		ClientID:     c.Auth.ClientID,
		ClientSecret: c.Auth.ClientSecret,
	}, nil
}

// MonitorInterval parses the monitor poll interval.
func (c *Config) MonitorInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Monitor.Interval)
	if err != nil {
		return 0, fmt.Errorf("config: invalid monitor.interval %q: %w", c.Monitor.Interval, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("config: monitor.interval must be positive, got %q", c.Monitor.Interval)
	}

	return d, nil
}
