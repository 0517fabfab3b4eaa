// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration loaded from MODELGATE_* variables.
//
// MasterKeyB64 and SigningKeyB64 are required; everything else carries a
// dev-friendly default. Key validation itself happens in crypto.LoadKeyMaterial
// so the failure message points at the actual defect (length, encoding).
type Config struct {
	ListenAddr string

	// PGDSN selects PostgreSQL persistence. Empty with RedisAddr empty means
	// in-memory stores (local development only).
	PGDSN     string
	RedisAddr string

	MasterKeyB64  string
	SigningKeyB64 string

	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RefreshTokenBytes int

	// FrontendOrigin is the single origin allowed by CORS and receiving the
	// session cookies.
	FrontendOrigin string
	SecureCookies  bool

	OpenAIBaseURL     string
	LocalModelBaseURL string
}

// Load reads configuration from the environment and returns a validated
// Config. A malformed value fails loading rather than falling back to the
// default, so a typo is noticed at startup and not in production behavior.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        getenv("MODELGATE_LISTEN_ADDR", ":8080"),
		PGDSN:             os.Getenv("MODELGATE_PG_DSN"),
		RedisAddr:         os.Getenv("MODELGATE_REDIS_ADDR"),
		MasterKeyB64:      os.Getenv("MODELGATE_MASTER_KEY"),
		SigningKeyB64:     os.Getenv("MODELGATE_SIGNING_KEY"),
		FrontendOrigin:    getenv("MODELGATE_FRONTEND_ORIGIN", "http://localhost:3000"),
		OpenAIBaseURL:     getenv("MODELGATE_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LocalModelBaseURL: getenv("MODELGATE_LOCALMODEL_BASE_URL", "http://localhost:11434"),
	}

	if cfg.MasterKeyB64 == "" {
		return nil, fmt.Errorf("MODELGATE_MASTER_KEY is required")
	}
	if cfg.SigningKeyB64 == "" {
		return nil, fmt.Errorf("MODELGATE_SIGNING_KEY is required")
	}

	var err error
	if cfg.AccessTTL, err = getduration("MODELGATE_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = getduration("MODELGATE_REFRESH_TTL", 14*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenBytes, err = getint("MODELGATE_REFRESH_TOKEN_BYTES", 32); err != nil {
		return nil, err
	}
	if cfg.SecureCookies, err = getbool("MODELGATE_SECURE_COOKIES", false); err != nil {
		return nil, err
	}

	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("MODELGATE_ACCESS_TTL must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("MODELGATE_REFRESH_TTL must exceed the access TTL")
	}
	if cfg.RefreshTokenBytes < 16 {
		return nil, fmt.Errorf("MODELGATE_REFRESH_TOKEN_BYTES must be at least 16")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}

func getint(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func getbool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return parsed, nil
}
