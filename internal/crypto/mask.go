package crypto

import "strings"

const (
	maskRune      = '*'
	fixedMask     = "******"
	maskedMiddle  = "****"
	maskRevealLen = 3
	maskThreshold = 6
)

// MaskSecret redacts a secret for display. Values of six characters or fewer
// collapse to a constant-width mask so even their approximate length stays
// hidden; longer values reveal the first and last three characters around a
// fixed-width middle. The middle never scales with the true length.
func MaskSecret(s string) string {
	if len(s) <= maskThreshold {
		return fixedMask
	}
	return s[:maskRevealLen] + maskedMiddle + s[len(s)-maskRevealLen:]
}

// IsMasked reports whether s is a masked display value. Clients echoing a
// read response back on update send these; the write path keeps the stored
// ciphertext instead of encrypting the mask.
func IsMasked(s string) bool {
	return strings.ContainsRune(s, maskRune)
}

// MaskField returns a shallow copy of m with the named field's value replaced
// by its masked projection. An absent or nil field leaves the copy identical
// to the input. The input map is never modified and nothing is decrypted:
// callers mask the stored representation directly, so plaintext is never
// materialized just for display.
func MaskField(m map[string]any, field string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	v, ok := out[field]
	if !ok || v == nil {
		return out
	}
	s, ok := v.(string)
	if !ok {
		return out
	}
	out[field] = MaskSecret(s)
	return out
}
