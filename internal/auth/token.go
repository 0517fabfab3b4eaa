package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"modelgate.org/internal/crypto"
)

const issuer = "modelgate"

// Claims are the JWT claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// AccessTokens issues and verifies short-lived HS256 access tokens. It is
// stateless: verification checks only the signature and the registered
// claims, never persisted state, so the hot request path performs no I/O.
type AccessTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// AccessTokenOption configures AccessTokens.
type AccessTokenOption func(*AccessTokens)

// WithAccessClock overrides the time source (useful for tests).
func WithAccessClock(fn func() time.Time) AccessTokenOption {
	return func(a *AccessTokens) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAccessTokens builds an issuer/verifier over the signing key held by km.
func NewAccessTokens(km *crypto.KeyMaterial, ttl time.Duration, opts ...AccessTokenOption) (*AccessTokens, error) {
	if ttl <= 0 {
		return nil, errors.New("auth: access token ttl must be positive")
	}
	a := &AccessTokens{key: km.SigningKey(), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue signs a token asserting userID as subject, valid for the configured TTL.
func (a *AccessTokens) Issue(userID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, ErrInvalidInput
	}
	now := a.now().UTC()
	exp := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks the signature and registered claims and returns the subject.
// Every failure mode maps to ErrInvalidToken; callers treat that as an
// anonymous request, never as a server fault.
func (a *AccessTokens) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return a.key, nil
	},
		jwt.WithTimeFunc(a.now),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// TTL returns the configured access token lifetime.
func (a *AccessTokens) TTL() time.Duration { return a.ttl }
