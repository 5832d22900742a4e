// Package config provides centralized configuration for the GIS portal server.
// Environment variables are parsed into Config with caarlos0/env; CLI flags select
// test mode and override the listen address.
package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/kuitang/gisportal/internal/ratelimit"
)

// TestMasterKey is the fixed SQLCipher key used with --test.
const TestMasterKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8080"`
	BaseURL      string `env:"BASE_URL"`
	TemplatesDir string `env:"TEMPLATES_DIR"` // empty = embedded templates

	// Database and sessions
	MasterKey       string        `env:"MASTER_KEY"` // 64 hex characters (32 bytes)
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"./data"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"720h"`

	// Seeded identity used by the browser session capture tooling
	SeedAdmin     bool   `env:"SEED_ADMIN" envDefault:"false"`
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Crash reporting
	SentryDSN              string  `env:"SENTRY_DSN"`
	SentryTunnelPath       string  `env:"SENTRY_TUNNEL_PATH" envDefault:"/sentry-proxy/"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.5"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	SentryRelease          string  `env:"SENTRY_RELEASE"`
	SentryUpstreamHost     string  `env:"SENTRY_UPSTREAM_HOST" envDefault:"sentry.io"`
	EnableCrashRoute       bool    `env:"ENABLE_CRASH_ROUTE" envDefault:"false"`

	// Rate limiting for login and the crash tunnel
	RateLimitRPS             float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst           int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitCleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"1h"`

	// TestMode is set by --test: fixed master key, a seeded admin and the crash route.
	TestMode bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags and returns them. Call before LoadConfig.
func ParseFlags() (testMode bool, addr string) {
	flag.BoolVar(&testMode, "test", false, "Use a fixed master key and seed the admin user")
	flag.StringVar(&addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.Parse()
	return testMode, addr
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(testMode bool, addr string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.TestMode = testMode
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	if testMode {
		if cfg.MasterKey == "" {
			cfg.MasterKey = TestMasterKey
		}
		cfg.SeedAdmin = true
		cfg.EnableCrashRoute = true
		if cfg.AdminPassword == "" {
			cfg.AdminPassword = "admin"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	// MasterKey: always required (losing it = sessions DB unreadable)
	if c.MasterKey == "" {
		errs = append(errs, "MASTER_KEY is required (generate with: openssl rand -hex 32, or use --test)")
	} else if len(c.MasterKey) != 64 {
		errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
	} else if _, err := hex.DecodeString(c.MasterKey); err != nil {
		errs = append(errs, "MASTER_KEY must be hex encoded")
	}

	if c.SessionDuration <= 0 {
		errs = append(errs, "SESSION_DURATION must be positive")
	}

	if c.SeedAdmin && c.AdminPassword == "" {
		errs = append(errs, "ADMIN_PASSWORD is required when SEED_ADMIN=true")
	}

	if c.SentryDSN != "" {
		u, err := url.Parse(c.SentryDSN)
		if err != nil || u.Host == "" || u.User == nil || strings.Trim(u.Path, "/") == "" {
			errs = append(errs, "SENTRY_DSN must look like https://<key>@<host>/<project>")
		}
	}
	if c.SentryTracesSampleRate < 0 || c.SentryTracesSampleRate > 1 {
		errs = append(errs, "SENTRY_TRACES_SAMPLE_RATE must be within [0, 1]")
	}
	if c.SentryTunnelPath != "" && (!strings.HasPrefix(c.SentryTunnelPath, "/") || !strings.HasSuffix(c.SentryTunnelPath, "/")) {
		errs = append(errs, "SENTRY_TUNNEL_PATH must start and end with /")
	}

	if c.RateLimitRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// RateLimit returns the limiter settings shared by login and the crash tunnel.
func (c *Config) RateLimit() ratelimit.Config {
	interval := c.RateLimitCleanupInterval
	if interval <= 0 {
		interval = ratelimit.DefaultConfig.CleanupInterval
	}
	return ratelimit.Config{
		RPS:             c.RateLimitRPS,
		Burst:           c.RateLimitBurst,
		CleanupInterval: interval,
	}
}

// RequireSecureCookies returns true if secure cookies should be required.
// Returns false for localhost development URLs.
func (c *Config) RequireSecureCookies() bool {
	return !strings.HasPrefix(c.BaseURL, "http://localhost") &&
		!strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "gisportal server starting...")
	if c.TestMode {
		fmt.Fprintln(os.Stderr, "  Mode:    test (--test)")
	}
	if c.SentryDSN == "" {
		fmt.Fprintln(os.Stderr, "  Crash:   disabled (no SENTRY_DSN)")
	} else {
		fmt.Fprintf(os.Stderr, "  Crash:   Sentry (tunnel: %s, traces: %.2f)\n", c.SentryTunnelPath, c.SentryTracesSampleRate)
	}
	if c.SeedAdmin {
		fmt.Fprintf(os.Stderr, "  Seed:    %s\n", c.AdminEmail)
	}
	if c.EnableCrashRoute {
		fmt.Fprintln(os.Stderr, "  Debug:   /debug/crash/ enabled")
	}
	fmt.Fprintf(os.Stderr, "  Data:    %s\n", c.DatabasePath)
	fmt.Fprintf(os.Stderr, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:    %s\n", c.BaseURL)
	fmt.Fprintln(os.Stderr, "")
}

// MustLoadConfig loads configuration and panics if validation fails.
// Use this in main() when you want the application to fail fast on bad config.
func MustLoadConfig(testMode bool, addr string) *Config {
	cfg, err := LoadConfig(testMode, addr)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
