package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MinJWTSecretLength mirrors the shortest HMAC secret the token keyring accepts
const MinJWTSecretLength = 32

// Config holds server configuration
type Config struct {
	DatabaseURL     string
	ServerPort      string
	BaseURL         string
	FrontendURL     string
	EnableHSTS      bool
	RedisURL        string
	RateLimit       string
	JWTSecret       string
	JWTIssuer       string
	RequestTimeout  time.Duration
	ServerDebugMode bool
	LogFormat       string
	OTELEnabled     bool
	OTELEndpoint    string
}

// Load reads a .env file from the working directory when present, then loads
// configuration from environment variables. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return load(os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func load(lookup lookupFunc) (*Config, error) {
	env := envSource{lookup: lookup}
	cfg := &Config{
		DatabaseURL:     env.getEnv("DATABASE_URL", ""),
		ServerPort:      env.getEnv("SERVER_PORT", "8080"),
		BaseURL:         env.getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:     env.getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:      env.getEnvBool("ENABLE_HSTS", false),
		RedisURL:        env.getEnv("REDIS_URL", ""),
		RateLimit:       env.getEnv("RATE_LIMIT", "10-S"),
		JWTSecret:       env.getEnv("JWT_SECRET", ""),
		JWTIssuer:       env.getEnv("JWT_ISSUER", "wellness-sessions"),
		RequestTimeout:  time.Duration(env.getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		ServerDebugMode: env.getEnvBool("SERVER_DEBUG_MODE", false),
		LogFormat:       env.getEnv("LOG_FORMAT", "json"),
		OTELEnabled:     env.getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    env.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET is required and must be at least %d characters", MinJWTSecretLength)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", cfg.LogFormat)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

type envSource struct {
	lookup lookupFunc
}

func (e envSource) getEnv(key, defaultValue string) string {
	if value, ok := e.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (e envSource) getEnvBool(key string, defaultValue bool) bool {
	if value, ok := e.lookup(key); ok && value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e envSource) getEnvInt(key string, defaultValue int) int {
	if value, ok := e.lookup(key); ok && value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
