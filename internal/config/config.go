// Package config loads service settings from a .env file and the process
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root configuration of the service.
type Config struct {
	Env  string `env:"ENV" env-default:"local"`
	Port string `env:"PORT" env-default:"8080"`

	Store      StoreConfig
	Tokens     TokenConfig
	Moderation ModerationConfig
	SMTP       SMTPConfig
	HTTP       HTTPConfig
	Cache      CacheConfig
}

// StoreConfig selects the data store gateway.
type StoreConfig struct {
	// postgres or memory
	Driver      string `env:"STORE_DRIVER" env-default:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// TokenConfig holds the keys of both token kinds.
type TokenConfig struct {
	// Secret signs moderation links.
	Secret string `env:"SECRET_KEY"`
	// AuthorKey is an HMAC secret or a PEM encoded public key of the
	// identity authority. AuthorKeyFile, when set, takes precedence.
	AuthorKey     string `env:"AUTHOR_TOKEN_KEY"`
	AuthorKeyFile string `env:"AUTHOR_TOKEN_KEY_FILE"`
	AuthorIssuer  string `env:"AUTHOR_TOKEN_ISSUER"`
}

// ModerationConfig configures report e-mails and their links.
type ModerationConfig struct {
	MaxAge        time.Duration `env:"MAX_AGE_REPORT_TOKENS" env-default:"168h"`
	AdminEmails   []string      `env:"ADMIN_EMAILS" env-separator:","`
	SenderName    string        `env:"SENDER_NAME" env-default:"murmur"`
	HostedAddress string        `env:"HOSTED_ADDRESS" env-default:"http://localhost:8080"`
	TemplatesDir  string        `env:"TEMPLATES_DIR"`
}

type SMTPConfig struct {
	Host string `env:"SMTP_HOST"`
	Port int    `env:"SMTP_PORT" env-default:"587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	From string `env:"SMTP_FROM"`
	// Timeout bounds one delivery attempt.
	Timeout time.Duration `env:"SMTP_TIMEOUT" env-default:"10s"`
}

type HTTPConfig struct {
	CORSOrigin string `env:"CORS_ORIGIN" env-default:"*"`
}

type CacheConfig struct {
	Size int           `env:"VIEW_CACHE_SIZE" env-default:"500"`
	TTL  time.Duration `env:"VIEW_CACHE_TTL" env-default:"5m"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// MustLoad is Load that panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.resolveAuthorKey(); err != nil {
		return nil, err
	}
	cfg.Moderation.AdminEmails = trimAll(cfg.Moderation.AdminEmails)
	cfg.Moderation.HostedAddress = strings.TrimRight(cfg.Moderation.HostedAddress, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveAuthorKey() error {
	if c.Tokens.AuthorKeyFile == "" {
		return nil
	}
	b, err := os.ReadFile(c.Tokens.AuthorKeyFile)
	if err != nil {
		return fmt.Errorf("read author token key: %w", err)
	}
	c.Tokens.AuthorKey = string(b)
	return nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.Tokens.Secret == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.Tokens.AuthorKey == "" {
		errs = append(errs, errors.New("AUTHOR_TOKEN_KEY or AUTHOR_TOKEN_KEY_FILE is required"))
	}
	if c.Moderation.MaxAge <= 0 {
		errs = append(errs, errors.New("MAX_AGE_REPORT_TOKENS must be positive"))
	}
	if c.SMTP.Timeout <= 0 {
		errs = append(errs, errors.New("SMTP_TIMEOUT must be positive"))
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
