package crypto

import "errors"

var (
	// ErrBadKey indicates the configured master key does not decode to the
	// required AES-256 key size. Construction fails; the process must not start.
	ErrBadKey = errors.New("crypto: master key must decode to exactly 32 bytes")

	// ErrBadSigningKey indicates a missing or undecodable token signing key.
	ErrBadSigningKey = errors.New("crypto: signing key is not valid base64")

	// ErrMalformedCiphertext indicates the blob is not base64 or is too short
	// to contain an IV and at least one cipher block.
	ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")

	// ErrDecrypt indicates the padding check failed after decryption.
	ErrDecrypt = errors.New("crypto: decrypt failed")
)
