// Package config loads process configuration from an optional YAML file and
// environment variables, then validates it. Missing required values are a
// startup failure.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jun/driveuploader/internal/secret"
)

const (
	defaultConfigFile    = "config.yaml"
	defaultMaxUploadSize = "4MB"
	defaultSessionMaxAge = 30 * 24 * time.Hour
)

// Config holds non-secret settings. Secrets are referenced by parameter name
// and resolved separately through a secret.Resolver.
type Config struct {
	DevMode bool   `koanf:"dev_mode"`
	Port    string `koanf:"port" validate:"required"`
	BaseURL string `koanf:"base_url" validate:"required,url"`

	GoogleClientID          string `koanf:"google_client_id" validate:"required"`
	GoogleClientSecretParam string `koanf:"google_client_secret_param" validate:"required"`
	GoogleRedirectURL       string `koanf:"google_redirect_url" validate:"omitempty,url"`
	DriveFolderID           string `koanf:"drive_folder_id"`

	SessionSecretParam    string        `koanf:"session_secret_param" validate:"required"`
	SessionMaxAge         time.Duration `koanf:"session_max_age" validate:"gt=0"`
	APIGatewaySecretParam string        `koanf:"api_gateway_secret_param"`
	KMSKeyID              string        `koanf:"kms_key_id"`

	MaxUploadSize string `koanf:"max_upload_size" validate:"required"`

	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogPretty bool   `koanf:"log_pretty"`
}

// Secrets are the resolved secret values.
type Secrets struct {
	GoogleClientSecret string `validate:"required"`
	SessionSecret      string `validate:"required,min=16"`
	APIGatewaySecret   string
}

func defaults() Config {
	return Config{
		Port:                    "8080",
		BaseURL:                 "http://localhost:8080",
		GoogleClientSecretParam: "/driveuploader/google-client-secret",
		SessionSecretParam:      "/driveuploader/session-secret",
		SessionMaxAge:           defaultSessionMaxAge,
		APIGatewaySecretParam:   "/driveuploader/api-gateway-secret",
		MaxUploadSize:           defaultMaxUploadSize,
		LogLevel:                "info",
	}
}

// Load reads CONFIG_FILE (default config.yaml, skipped when absent), overlays
// environment variables and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	known := knownKeys()
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(key)
			if _, ok := known[key]; !ok {
				return "", nil
			}
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and parses derived values.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	return nil
}

// MaxUploadBytes parses MaxUploadSize ("4MB", "512KiB", ...).
func (c *Config) MaxUploadBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_upload_size %q: %w", c.MaxUploadSize, err)
	}
	if n == 0 {
		return 0, errors.New("max_upload_size must be positive")
	}
	return int64(n), nil
}

// RedirectURL is the OAuth2 callback URL registered with Google.
func (c *Config) RedirectURL() string {
	if c.GoogleRedirectURL != "" {
		return c.GoogleRedirectURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/auth/callback"
}

// ResolveSecrets fetches the secrets named by the config. The API gateway
// secret is optional in DEV_MODE only.
func (c *Config) ResolveSecrets(ctx context.Context, r secret.Resolver) (*Secrets, error) {
	var s Secrets
	var err error

	if s.GoogleClientSecret, err = r.GetSecret(ctx, c.GoogleClientSecretParam); err != nil {
		return nil, fmt.Errorf("resolve google client secret: %w", err)
	}
	if s.SessionSecret, err = r.GetSecret(ctx, c.SessionSecretParam); err != nil {
		return nil, fmt.Errorf("resolve session secret: %w", err)
	}
	if s.APIGatewaySecret, err = r.GetSecret(ctx, c.APIGatewaySecretParam); err != nil && !c.DevMode {
		return nil, fmt.Errorf("resolve api gateway secret: %w", err)
	}

	if err := validator.New().Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid secrets: %w", err)
	}
	return &s, nil
}

func knownKeys() map[string]struct{} {
	return map[string]struct{}{
		"dev_mode":                   {},
		"port":                       {},
		"base_url":                   {},
		"google_client_id":           {},
		"google_client_secret_param": {},
		"google_redirect_url":        {},
		"drive_folder_id":            {},
		"session_secret_param":       {},
		"session_max_age":            {},
		"api_gateway_secret_param":   {},
		"kms_key_id":                 {},
		"max_upload_size":            {},
		"log_level":                  {},
		"log_pretty":                 {},
	}
}
