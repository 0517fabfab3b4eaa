package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecretShortValuesUseFixedMask(t *testing.T) {
	for _, s := range []string{"", "a", "abcdef"} {
		assert.Equal(t, "******", MaskSecret(s))
	}
}

func TestMaskSecretLongValuesRevealEdgesOnly(t *testing.T) {
	assert.Equal(t, "sk-****456", MaskSecret("sk-abcdef123456"))

	// Same-length inputs yield same-shape output; middle width is fixed.
	a := MaskSecret("aaaaaaaaaaaaaaaaaaaa")
	b := MaskSecret("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	assert.Len(t, a, 10)
	assert.Len(t, b, 10)
}

func TestMaskFieldNeverReturnsOriginal(t *testing.T) {
	in := map[string]any{"apiKey": "sk-abcdef123456", "model": "gpt-4o"}
	out := MaskField(in, "apiKey")

	assert.NotEqual(t, in["apiKey"], out["apiKey"])
	assert.NotContains(t, out["apiKey"], "abcdef123")
	assert.Equal(t, "gpt-4o", out["model"])

	// The input map is untouched.
	assert.Equal(t, "sk-abcdef123456", in["apiKey"])
}

func TestMaskFieldAbsentOrNilField(t *testing.T) {
	out := MaskField(map[string]any{"model": "llama3"}, "apiKey")
	assert.Equal(t, map[string]any{"model": "llama3"}, out)

	out = MaskField(map[string]any{"apiKey": nil}, "apiKey")
	assert.Nil(t, out["apiKey"])

	assert.Nil(t, MaskField(nil, "apiKey"))
}
