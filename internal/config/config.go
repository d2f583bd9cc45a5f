// Package config loads application configuration from environment variables.
package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// ErrMissingRepository is returned by RequireRepository when the owner or
// repository is not configured.
var ErrMissingRepository = errors.New("PRSTATUS_OWNER and PRSTATUS_REPOSITORY are required")

// Config holds the application configuration loaded from PRSTATUS_ variables.
type Config struct {
	Variant     model.Variant `env:"PRSTATUS_VARIANT, default=cloud"`
	ServerURL   string        `env:"PRSTATUS_SERVER_URL"`
	CloudAPIURL string        `env:"PRSTATUS_CLOUD_API_URL, default=https://api.bitbucket.org"`

	Username string `env:"PRSTATUS_USERNAME"`
	Password string `env:"PRSTATUS_PASSWORD"`

	Owner      string `env:"PRSTATUS_OWNER"`
	Repository string `env:"PRSTATUS_REPOSITORY"`

	KeyPrefix        string `env:"PRSTATUS_KEY_PREFIX, default=prstatus"`
	CIName           string `env:"PRSTATUS_CI_NAME, default=prstatus"`
	RootURL          string `env:"PRSTATUS_ROOT_URL"`
	ApproveIfSuccess bool   `env:"PRSTATUS_APPROVE_IF_SUCCESS, default=false"`

	ProxyURL      string `env:"PRSTATUS_PROXY_URL"`
	ProxyUsername string `env:"PRSTATUS_PROXY_USERNAME"`
	ProxyPassword string `env:"PRSTATUS_PROXY_PASSWORD"`

	Timeout   time.Duration `env:"PRSTATUS_TIMEOUT, default=60s"`
	RateLimit float64       `env:"PRSTATUS_RATE_LIMIT, default=0"`

	ListenAddr string `env:"PRSTATUS_LISTEN_ADDR, default=127.0.0.1:8080"`
	DBPath     string `env:"PRSTATUS_DB_PATH, default=prstatus.db"`
	SecretKey  string `env:"PRSTATUS_SECRET_KEY"`

	LogLevel  string `env:"PRSTATUS_LOG_LEVEL, default=info"`
	LogFormat string `env:"PRSTATUS_LOG_FORMAT, default=text"`

	encryptionKey []byte
	level         slog.Level
}

// Load reads configuration from the process environment.
//
// Bitbucket credentials are optional: without them the server starts and
// events are logged but not reported until credentials are set through the
// API. PRSTATUS_SECRET_KEY, when set, must be base64 for 32 bytes; without it
// credentials set through the API are kept in memory only.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	variant, err := model.ParseVariant(strings.ToLower(string(c.Variant)))
	if err != nil {
		return fmt.Errorf("PRSTATUS_VARIANT: %w", err)
	}
	c.Variant = variant

	if c.Variant == model.VariantServer && c.ServerURL == "" {
		return errors.New("PRSTATUS_SERVER_URL is required when PRSTATUS_VARIANT=server")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("PRSTATUS_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("PRSTATUS_RATE_LIMIT must not be negative, got %v", c.RateLimit)
	}

	if c.SecretKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.SecretKey)
		if err != nil {
			return fmt.Errorf("PRSTATUS_SECRET_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("PRSTATUS_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		c.encryptionKey = key
	}

	if err := c.level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("PRSTATUS_LOG_LEVEL: %w", err)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("PRSTATUS_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// HasCredentials reports whether both Bitbucket username and password are set.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// RequireRepository returns ErrMissingRepository unless owner and repository
// are both set.
func (c *Config) RequireRepository() error {
	if c.Owner == "" || c.Repository == "" {
		return ErrMissingRepository
	}
	return nil
}

// EncryptionKey returns the decoded PRSTATUS_SECRET_KEY, or nil.
func (c *Config) EncryptionKey() []byte { return c.encryptionKey }

// Level returns the parsed PRSTATUS_LOG_LEVEL.
func (c *Config) Level() slog.Level { return c.level }
