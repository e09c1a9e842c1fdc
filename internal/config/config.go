// Package config loads service configuration from YAML, an optional .env file
// and environment variables, in that order of precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GraphQL  GraphQLConfig  `yaml:"graphql"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sessions SessionsConfig `yaml:"sessions"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateBurst      int           `yaml:"rateBurst"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type GraphQLConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secretKey"`
	ReturnURL string `yaml:"returnUrl"`
}

// DatabaseConfig: empty URL keeps sessions in memory only.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig: empty Addr caches consents in memory.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	ConsentTTL time.Duration `yaml:"consentTtl"`
}

// SessionsConfig: sessions untouched for IdleTTL leave memory.
type SessionsConfig struct {
	IdleTTL time.Duration `yaml:"idleTtl"`
}

// NATSConfig: empty URL disables event publishing.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimit:      10,
			RateBurst:      20,
			RequestTimeout: 30 * time.Second,
		},
		GraphQL: GraphQLConfig{
			Endpoint: "http://localhost:4000/graphql",
			Timeout:  15 * time.Second,
		},
		Redis: RedisConfig{
			ConsentTTL: 5 * time.Minute,
		},
		Sessions: SessionsConfig{
			IdleTTL: 30 * time.Minute,
		},
		NATS: NATSConfig{
			SubjectPrefix: "events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.RateLimit <= 0 {
		errs = append(errs, errors.New("http.rateLimit must be positive"))
	}
	if c.HTTP.RateBurst <= 0 {
		errs = append(errs, errors.New("http.rateBurst must be positive"))
	}
	if c.Sessions.IdleTTL <= 0 {
		errs = append(errs, errors.New("sessions.idleTtl must be positive"))
	}
	if c.GraphQL.Endpoint == "" {
		errs = append(errs, errors.New("graphql.endpoint is required"))
	}
	if c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("stripe.secretKey is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format[%s] must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level[%s]: %w", l.Level, err)
	}
	return level, nil
}

// Load builds the configuration from defaults, the YAML file at path (optional
// when empty), the .env file at envFile (ignored when missing) and the process
// environment, then validates it.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("os.ReadFile: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("yaml.Unmarshal: %w", err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("godotenv.Load: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cfg.Validate: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"CHECKOUT_HTTP_ADDR", &c.HTTP.Addr},
		{"CHECKOUT_GRAPHQL_ENDPOINT", &c.GraphQL.Endpoint},
		{"CHECKOUT_DATABASE_URL", &c.Database.URL},
		{"CHECKOUT_REDIS_ADDR", &c.Redis.Addr},
		{"CHECKOUT_NATS_URL", &c.NATS.URL},
		{"STRIPE_SECRET_KEY", &c.Stripe.SecretKey},
		{"CHECKOUT_JWT_SECRET", &c.Auth.JWTSecret},
		{"CHECKOUT_LOG_LEVEL", &c.Log.Level},
	}

	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && strings.TrimSpace(v) != "" {
			*o.dst = strings.TrimSpace(v)
		}
	}
}
