package auth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"modelgate.org/internal/crypto"
)

func testKeyMaterial(t *testing.T) *crypto.KeyMaterial {
	t.Helper()
	master := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	signing := base64.StdEncoding.EncodeToString([]byte("test-signing-key"))
	km, err := crypto.LoadKeyMaterial(master, signing)
	if err != nil {
		t.Fatalf("LoadKeyMaterial failed: %v", err)
	}
	return km
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tokens, err := NewAccessTokens(testKeyMaterial(t), 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}

	signed, exp, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry not in the future: %v", exp)
	}

	subject, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject: %q", subject)
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	current := time.Now()
	tokens, err := NewAccessTokens(testKeyMaterial(t), time.Minute,
		WithAccessClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}

	signed, _, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := tokens.Verify(signed); err != nil {
		t.Fatalf("fresh token should verify: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := tokens.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestAccessTokenTamperedSignature(t *testing.T) {
	tokens, err := NewAccessTokens(testKeyMaterial(t), time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}
	signed, _, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	master := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	otherSigning := base64.StdEncoding.EncodeToString([]byte("another-signing-key"))
	otherKM, err := crypto.LoadKeyMaterial(master, otherSigning)
	if err != nil {
		t.Fatalf("LoadKeyMaterial failed: %v", err)
	}
	other, err := NewAccessTokens(otherKM, time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}

	if _, err := other.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestAccessTokenGarbage(t *testing.T) {
	tokens, err := NewAccessTokens(testKeyMaterial(t), time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokens failed: %v", err)
	}
	for _, tok := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q): expected ErrInvalidToken, got %v", tok, err)
		}
	}
}
