package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

const VersionV1 = "v1"

// Config is the on-disk bbctl configuration. Everything in here is
// non-secret; credentials live in the secret store.
type Config struct {
	Version string      `yaml:"version"`
	API     APIConfig   `yaml:"api,omitempty"`
	OAuth   OAuthConfig `yaml:"oauth,omitempty"`
	Env     EnvConfig   `yaml:"env,omitempty"`
}

type APIConfig struct {
	BaseURL    string `yaml:"base-url,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
	MaxRetries int    `yaml:"max-retries,omitempty"`
}

// OAuthConfig holds the provider's fixed OAuth 2.0 endpoints and the
// local callback port used during interactive login.
type OAuthConfig struct {
	AuthorizeURL string `yaml:"authorize-url,omitempty"`
	TokenURL     string `yaml:"token-url,omitempty"`
	CallbackPort int    `yaml:"callback-port,omitempty"`
}

// EnvConfig names the environment variables the credential resolver
// consults. The names are configuration, not structure.
type EnvConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		API: APIConfig{
			BaseURL:    "https://api.bitbucket.org/2.0",
			Timeout:    "30s",
			MaxRetries: 3,
		},
		OAuth: OAuthConfig{
			AuthorizeURL: "https://bitbucket.org/site/oauth2/authorize",
			TokenURL:     "https://bitbucket.org/site/oauth2/access_token",
			CallbackPort: 8080,
		},
		Env: EnvConfig{
			Username: "BBCTL_USERNAME",
			Password: "BBCTL_PASSWORD",
			Token:    "BBCTL_OAUTH_TOKEN",
		},
	}
}

// Load reads the config file at path. A missing file is not an error;
// defaults are returned so first-run commands work without `config init`.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

// RequestTimeout parses the configured API timeout, defaulting to 30s
// when unset or unparseable.
func (c *Config) RequestTimeout() time.Duration {
	if c.API.Timeout != "" {
		if d, err := time.ParseDuration(c.API.Timeout); err == nil {
			return d
		}
	}
	return 30 * time.Second
}
