package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthWidgetURL  string        `mapstructure:"AUTH_WIDGET_URL"`
	AuthSecret     string        `mapstructure:"AUTH_SIGNING_KEY"`
	Backend        string        `mapstructure:"RECORDS_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBConnTimeout  time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`
	RemoteAPIURL   string        `mapstructure:"REMOTE_API_URL"`
	RemoteProject  string        `mapstructure:"REMOTE_PROJECT_ID"`
	RemoteKey      string        `mapstructure:"REMOTE_PUBLIC_KEY"`
	RemoteTimeout  time.Duration `mapstructure:"REMOTE_TIMEOUT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	PageSize       int           `mapstructure:"PAGE_SIZE"`
	FetchLimit     int           `mapstructure:"FETCH_LIMIT"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	SeedDemoData   bool          `mapstructure:"SEED_DEMO_DATA"`
	Timezone       string        `mapstructure:"TIMEZONE"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"AUTH_WIDGET_URL", "AUTH_SIGNING_KEY", "RECORDS_BACKEND", "DATABASE_URL",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "DB_CONNECT_TIMEOUT", "REMOTE_API_URL", "REMOTE_PROJECT_ID",
	"REMOTE_PUBLIC_KEY", "REMOTE_TIMEOUT", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "BODY_LIMIT", "PAGE_SIZE", "FETCH_LIMIT", "SESSION_TTL",
	"SEED_DEMO_DATA", "TIMEZONE",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	// Empty values are inferred, see ResolvedAuthMode and ResolvedBackend.
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("RECORDS_BACKEND", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")
	v.SetDefault("REMOTE_TIMEOUT", "0s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("PAGE_SIZE", 10)
	v.SetDefault("FETCH_LIMIT", 100)
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SEED_DEMO_DATA", false)
	v.SetDefault("TIMEZONE", "Local")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise:
//   - ENV=development -> "development"
//   - AUTH_ISSUER set -> "external"
//   - otherwise       -> "standalone"
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	if c.AuthIssuer != "" {
		return "external"
	}
	return "standalone"
}

// ResolvedBackend returns RECORDS_BACKEND when set, else "remote" when
// REMOTE_API_URL is set, "postgres" when DATABASE_URL is set, and "memory"
// otherwise.
func (c *Config) ResolvedBackend() string {
	switch {
	case c.Backend != "":
		return c.Backend
	case c.RemoteAPIURL != "":
		return BackendRemote
	case c.DatabaseURL != "":
		return BackendPostgres
	}
	return BackendMemory
}

// Location resolves TIMEZONE, which anchors date filters and the
// datetime-local inputs.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed when ENV=production")
		}
	case "standalone":
	case "external":
		if c.AuthIssuer == "" && c.AuthSecret == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when AUTH_MODE is \"external\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"standalone\", or \"external\", got %q", mode)
	}

	switch backend := c.ResolvedBackend(); backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORDS_BACKEND is \"postgres\"")
		}
	case BackendRemote:
		if c.RemoteAPIURL == "" {
			return fmt.Errorf("REMOTE_API_URL is required when RECORDS_BACKEND is \"remote\"")
		}
	default:
		return fmt.Errorf("RECORDS_BACKEND must be \"memory\", \"postgres\", or \"remote\", got %q", backend)
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.FetchLimit < c.PageSize {
		return fmt.Errorf("FETCH_LIMIT (%d) must be at least PAGE_SIZE (%d)", c.FetchLimit, c.PageSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
