// Package config loads service configuration from environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Rule document backends
const (
	BackendBlob     = "blob"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts raw secret values.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

// Config holds the server configuration
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DevOpsPAT                  Secret   `env:"DEVOPS_PAT"`
	DevOpsBaseURL              string   `env:"DEVOPS_BASE_URL" envDefault:"https://dev.azure.com/"`
	DevOpsDefaultOrganization  string   `env:"DEVOPS_DEFAULT_ORGANIZATION"`
	DevOpsAllowedOrganizations []string `env:"DEVOPS_ALLOWED_ORGANIZATIONS" envSeparator:","`

	RulesBackend                 string        `env:"RULES_BACKEND" envDefault:"blob"`
	RulesContainer               string        `env:"RULES_CONTAINER" envDefault:"rules"`
	AzureStorageConnectionString Secret        `env:"AZURE_STORAGE_CONNECTION_STRING"`
	DatabaseURL                  Secret        `env:"DATABASE_URL"`
	RulesCacheTTL                time.Duration `env:"RULES_CACHE_TTL" envDefault:"0s"`

	WebhookUsername string `env:"WEBHOOK_USERNAME"`
	WebhookPassword Secret `env:"WEBHOOK_PASSWORD"`

	RateLimitPerSecond float64       `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	LogLevel        string `env:"LOG_LEVEL" envDefault:"INFO"`
	ErrorSampleRate int    `env:"ERROR_SAMPLE_RATE" envDefault:"1"`
	OTELEnabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"propagation"`
}

// Load parses the environment and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.RulesBackend = strings.ToLower(strings.TrimSpace(cfg.RulesBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backends have what they need
func (c *Config) Validate() error {
	var errs []error

	if !c.DevOpsPAT.IsSet() {
		errs = append(errs, errors.New("DEVOPS_PAT is required"))
	}

	switch c.RulesBackend {
	case BackendBlob:
		if !c.AzureStorageConnectionString.IsSet() {
			errs = append(errs, errors.New("AZURE_STORAGE_CONNECTION_STRING is required for the blob backend"))
		}
		if c.RulesContainer == "" {
			errs = append(errs, errors.New("RULES_CONTAINER is required for the blob backend"))
		}
	case BackendPostgres:
		if !c.DatabaseURL.IsSet() {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("RULES_BACKEND %q is not one of blob, postgres, memory", c.RulesBackend))
	}

	if c.RulesCacheTTL < 0 {
		errs = append(errs, errors.New("RULES_CACHE_TTL cannot be negative"))
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits cannot be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.WebhookUsername != "" && !c.WebhookPassword.IsSet() {
		errs = append(errs, errors.New("WEBHOOK_PASSWORD is required when WEBHOOK_USERNAME is set"))
	}

	return errors.Join(errs...)
}

// BasicAuthEnabled reports whether inbound requests must carry credentials
func (c *Config) BasicAuthEnabled() bool {
	return c.WebhookUsername != ""
}

// RateLimitEnabled reports whether per-client rate limiting is active
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitPerSecond > 0
}
