package crypto

import (
	"encoding/base64"
	"strings"
)

const masterKeySize = 32

// KeyMaterial carries the process-wide secrets: the master symmetric key used
// for field encryption and the HMAC key used to sign access tokens. It is
// constructed once at startup from base64-encoded configuration values and is
// immutable afterwards, so it can be shared across goroutines without locking.
type KeyMaterial struct {
	master  []byte
	signing []byte
}

// LoadKeyMaterial decodes both keys and validates the master key length.
// A master key that does not decode to exactly 32 bytes is a configuration
// fault and the caller is expected to abort startup.
func LoadKeyMaterial(masterB64, signingB64 string) (*KeyMaterial, error) {
	master, err := base64.StdEncoding.DecodeString(strings.TrimSpace(masterB64))
	if err != nil || len(master) != masterKeySize {
		return nil, ErrBadKey
	}
	signing, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signingB64))
	if err != nil || len(signing) == 0 {
		return nil, ErrBadSigningKey
	}
	return &KeyMaterial{master: master, signing: signing}, nil
}

// SigningKey returns the access token HMAC key.
func (k *KeyMaterial) SigningKey() []byte { return k.signing }

// String redacts the key material so accidental logging leaks nothing.
func (k *KeyMaterial) String() string { return "KeyMaterial(redacted)" }

// GoString redacts %#v formatting as well.
func (k *KeyMaterial) GoString() string { return k.String() }
