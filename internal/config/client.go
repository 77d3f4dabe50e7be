package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const clientConfigFile = "sessionctl.yaml"

// Credential store kinds
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// ClientConfig configures sessionctl
type ClientConfig struct {
	APIURL      string            `yaml:"api_url"`
	Profile     string            `yaml:"profile"`
	LogLevel    string            `yaml:"log_level"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Autosave    AutosaveConfig    `yaml:"autosave"`
}

// CredentialsConfig selects where the bearer token lives
type CredentialsConfig struct {
	Store    string `yaml:"store"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// AutosaveConfig tunes the draft autosave loop
type AutosaveConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	StatusDecay    time.Duration `yaml:"status_decay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultClientConfig returns the configuration used when no file exists
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		APIURL:   "http://localhost:8080",
		Profile:  "default",
		LogLevel: "warn",
		Credentials: CredentialsConfig{
			Store: StoreFile,
		},
		Autosave: AutosaveConfig{
			Debounce:       5 * time.Second,
			StatusDecay:    3 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
	}
}

// DefaultClientConfigPath returns the sessionctl config location under the user config dir
func DefaultClientConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "wellness-sessions", clientConfigFile), nil
}

// LoadClient reads path over the defaults, then applies SESSIONCTL_* environment
// overrides. A missing file is not an error.
func LoadClient(path string) (*ClientConfig, error) {
	return loadClient(path, os.LookupEnv)
}

func loadClient(path string, lookup lookupFunc) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	env := envSource{lookup: lookup}
	cfg.APIURL = env.getEnv("SESSIONCTL_API_URL", cfg.APIURL)
	cfg.Profile = env.getEnv("SESSIONCTL_PROFILE", cfg.Profile)
	cfg.LogLevel = env.getEnv("SESSIONCTL_LOG_LEVEL", cfg.LogLevel)
	cfg.Credentials.Store = env.getEnv("SESSIONCTL_CREDENTIAL_STORE", cfg.Credentials.Store)
	cfg.Credentials.RedisURL = env.getEnv("SESSIONCTL_REDIS_URL", cfg.Credentials.RedisURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a client cannot run without
func (c *ClientConfig) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	switch c.Credentials.Store {
	case StoreFile:
	case StoreRedis:
		if c.Credentials.RedisURL == "" {
			return errors.New("credentials.redis_url is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown credential store %q", c.Credentials.Store)
	}
	if c.Autosave.Debounce <= 0 || c.Autosave.StatusDecay <= 0 || c.Autosave.RequestTimeout <= 0 {
		return errors.New("autosave durations must be positive")
	}
	return nil
}

// Save writes the config as YAML, creating the parent directory
func (c *ClientConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
