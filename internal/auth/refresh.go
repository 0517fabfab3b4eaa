package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// DefaultRefreshTokenBytes is the raw refresh token length used when the
// configuration does not override it.
const DefaultRefreshTokenBytes = 32

// DefaultRefreshTTL is the refresh token lifetime when not overridden.
const DefaultRefreshTTL = 14 * 24 * time.Hour

// newRawRefreshToken draws nBytes of randomness and returns the URL-safe,
// unpadded value handed to the client along with the hex SHA-256 hash that
// gets persisted.
func newRawRefreshToken(nBytes int) (raw, hash string, err error) {
	if nBytes <= 0 {
		nBytes = DefaultRefreshTokenBytes
	}
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, hashRefreshToken(raw), nil
}

// hashRefreshToken computes the stored hex SHA-256 digest of a raw token.
// Lookup is by hash equality, so the digest doubles as the storage key.
func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
