package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MODELGATE_MASTER_KEY", "bWFzdGVyLWtleS1tYXN0ZXIta2V5LW1hc3Rlci1rZXk=")
	t.Setenv("MODELGATE_SIGNING_KEY", "c2lnbmluZy1rZXk=")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 14*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.RefreshTokenBytes != 32 {
		t.Fatalf("unexpected token bytes: %d", cfg.RefreshTokenBytes)
	}
	if cfg.SecureCookies {
		t.Fatal("secure cookies should default off for local dev")
	}
}

func TestLoadMissingKeys(t *testing.T) {
	t.Setenv("MODELGATE_MASTER_KEY", "")
	t.Setenv("MODELGATE_SIGNING_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without master key")
	}
}

func TestLoadMalformedDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("MODELGATE_ACCESS_TTL", "fifteen minutes")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestLoadRefreshMustOutliveAccess(t *testing.T) {
	setRequired(t)
	t.Setenv("MODELGATE_ACCESS_TTL", "1h")
	t.Setenv("MODELGATE_REFRESH_TTL", "30m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh ttl <= access ttl")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MODELGATE_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("MODELGATE_REFRESH_TOKEN_BYTES", "48")
	t.Setenv("MODELGATE_SECURE_COOKIES", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" || cfg.RefreshTokenBytes != 48 || !cfg.SecureCookies {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
