package target

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryForKind(t *testing.T) {
	reg := NewRegistry("https://api.openai.invalid", "http://localhost:11434")

	for _, kind := range []string{ProviderOpenAI, ProviderLocalModel} {
		p, err := reg.ForKind(kind)
		require.NoError(t, err)
		require.Equal(t, kind, p.Kind())
	}

	_, err := reg.ForKind("bedrock")
	require.ErrorIs(t, err, ErrUnknownProvider)
	_, err = reg.ForKind("")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenAIValidateConfig(t *testing.T) {
	reg := NewRegistry("https://api.openai.invalid", "http://localhost:11434")
	p, err := reg.ForKind(ProviderOpenAI)
	require.NoError(t, err)

	require.NoError(t, p.ValidateConfig(map[string]any{"apiKey": "sk-x"}))
	require.ErrorIs(t, p.ValidateConfig(map[string]any{}), ErrInvalidConfig)
	require.ErrorIs(t, p.ValidateConfig(map[string]any{"apiKey": "  "}), ErrInvalidConfig)
	require.ErrorIs(t, p.ValidateConfig(map[string]any{"apiKey": 42}), ErrInvalidConfig)
	require.ErrorIs(t, p.ValidateConfig(map[string]any{"apiKey": "sk-x", "model": 7}), ErrInvalidConfig)
}

func TestLocalModelValidateConfig(t *testing.T) {
	reg := NewRegistry("https://api.openai.invalid", "http://localhost:11434")
	p, err := reg.ForKind(ProviderLocalModel)
	require.NoError(t, err)

	require.NoError(t, p.ValidateConfig(map[string]any{}), "credential is optional for local servers")
	require.NoError(t, p.ValidateConfig(map[string]any{"baseUrl": "http://box:8000"}))
	require.ErrorIs(t, p.ValidateConfig(map[string]any{"baseUrl": "box:8000"}), ErrInvalidConfig)
	require.ErrorIs(t, p.ValidateConfig(map[string]any{"baseUrl": ""}), ErrInvalidConfig)
	require.ErrorIs(t, p.ValidateConfig(map[string]any{"apiKey": 42}), ErrInvalidConfig)
}

func TestLocalModelProbeUsesConfiguredBaseURL(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound) // reachable is enough
	}))
	defer upstream.Close()

	reg := NewRegistry("https://api.openai.invalid", "http://localhost:1")
	p, err := reg.ForKind(ProviderLocalModel)
	require.NoError(t, err)

	err = p.Probe(context.Background(), map[string]any{"baseUrl": upstream.URL})
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}
