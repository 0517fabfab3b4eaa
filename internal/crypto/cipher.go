package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"
)

const ivSize = aes.BlockSize

// FieldCipher encrypts and decrypts individual secret values embedded in
// otherwise plaintext configuration maps. The stored form is
// base64(IV || ciphertext) with AES-256-CBC and PKCS#7 padding; a fresh
// random 16-byte IV is drawn per call so equal plaintexts never produce
// equal blobs. The cipher block is immutable after construction, making
// concurrent use safe.
type FieldCipher struct {
	block cipher.Block
}

// NewFieldCipher builds a cipher over the master key. The key length was
// validated by LoadKeyMaterial, so aes.NewCipher cannot fail here.
func NewFieldCipher(km *KeyMaterial) *FieldCipher {
	block, err := aes.NewCipher(km.master)
	if err != nil {
		panic("crypto: key material not validated: " + err.Error())
	}
	return &FieldCipher{block: block}
}

// Encrypt returns the base64 blob for plaintext.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[ivSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed input yields ErrMalformedCiphertext;
// a failed padding check after decryption yields ErrDecrypt.
func (c *FieldCipher) Decrypt(blob string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(combined) < ivSize+aes.BlockSize || len(combined)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}
	iv, data := combined[:ivSize], combined[ivSize:]
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, data)
	unpadded, ok := pkcs7Unpad(plain, aes.BlockSize)
	if !ok {
		return "", ErrDecrypt
	}
	return string(unpadded), nil
}

// LooksEncrypted reports whether s already has the shape of our stored blobs:
// valid standard base64 decoding to at least IV plus one block, block-aligned,
// and not a masked display value. The write path uses it as an idempotence
// guard so an already-encrypted or masked value is never encrypted again.
func (c *FieldCipher) LooksEncrypted(s string) bool {
	if s == "" || strings.ContainsRune(s, maskRune) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(decoded) >= ivSize+aes.BlockSize && len(decoded)%aes.BlockSize == 0
}

// EncryptField replaces the named field of m with its encrypted form in place.
// Absent or nil fields are left alone, as are values that already look like
// our ciphertext or like a masked display value.
func (c *FieldCipher) EncryptField(m map[string]any, field string) error {
	v, ok := m[field]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	if c.LooksEncrypted(s) || strings.ContainsRune(s, maskRune) {
		return nil
	}
	blob, err := c.Encrypt(s)
	if err != nil {
		return err
	}
	m[field] = blob
	return nil
}

// DecryptField replaces the named field with its plaintext when the stored
// value looks like one of our blobs. Values that are blank, masked, or not
// base64 are left untouched; a decrypt failure leaves the field unreadable
// rather than failing the read.
func (c *FieldCipher) DecryptField(m map[string]any, field string) {
	v, ok := m[field]
	if !ok || v == nil {
		return
	}
	s, ok := v.(string)
	if !ok || !c.LooksEncrypted(s) {
		return
	}
	plain, err := c.Decrypt(s)
	if err != nil {
		return
	}
	m[field] = plain
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, false
	}
	for _, pad := range b[len(b)-n:] {
		if int(pad) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
