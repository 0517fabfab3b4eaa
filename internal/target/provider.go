package target

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider validates a target config for its kind and probes the upstream
// with live credentials. One implementation exists per provider kind.
type Provider interface {
	Kind() string

	// ValidateConfig checks the config shape before persistence. It sees the
	// plaintext credential on create and either plaintext, ciphertext or a
	// masked value on update, so it only checks presence and types.
	ValidateConfig(cfg map[string]any) error

	// Probe performs an authenticated request against the provider using the
	// decrypted credential from cfg. A non-nil error means unreachable or
	// unauthorized.
	Probe(ctx context.Context, cfg map[string]any) error
}

// Registry resolves a Provider by kind. The switch is closed: a provider
// string outside the known set is ErrUnknownProvider everywhere.
type Registry struct {
	openai     Provider
	localmodel Provider
}

// NewRegistry builds the provider set over one shared HTTP client.
func NewRegistry(openAIBaseURL, localModelBaseURL string) *Registry {
	client := &http.Client{Timeout: 10 * time.Second}
	return &Registry{
		openai:     &openAIProvider{baseURL: strings.TrimRight(openAIBaseURL, "/"), client: client},
		localmodel: &localModelProvider{defaultBaseURL: strings.TrimRight(localModelBaseURL, "/"), client: client},
	}
}

// ForKind returns the provider implementation for the given kind.
func (r *Registry) ForKind(kind string) (Provider, error) {
	switch kind {
	case ProviderOpenAI:
		return r.openai, nil
	case ProviderLocalModel:
		return r.localmodel, nil
	default:
		return nil, ErrUnknownProvider
	}
}

func configString(cfg map[string]any, key string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// openAIProvider talks to an OpenAI-compatible HTTP API.
type openAIProvider struct {
	baseURL string
	client  *http.Client
}

func (p *openAIProvider) Kind() string { return ProviderOpenAI }

func (p *openAIProvider) ValidateConfig(cfg map[string]any) error {
	key, ok := configString(cfg, SecretConfigField)
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, SecretConfigField)
	}
	if model, present := cfg["model"]; present {
		if _, ok := model.(string); !ok {
			return fmt.Errorf("%w: model must be a string", ErrInvalidConfig)
		}
	}
	return nil
}

func (p *openAIProvider) Probe(ctx context.Context, cfg map[string]any) error {
	key, _ := configString(cfg, SecretConfigField)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}

// localModelProvider talks to a self-hosted model server. The credential is
// optional; many local servers run unauthenticated.
type localModelProvider struct {
	defaultBaseURL string
	client         *http.Client
}

func (p *localModelProvider) Kind() string { return ProviderLocalModel }

func (p *localModelProvider) ValidateConfig(cfg map[string]any) error {
	if raw, present := cfg["baseUrl"]; present {
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: baseUrl must be a non-empty string", ErrInvalidConfig)
		}
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			return fmt.Errorf("%w: baseUrl must be an http(s) URL", ErrInvalidConfig)
		}
	}
	if raw, present := cfg[SecretConfigField]; present {
		if _, ok := raw.(string); !ok {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidConfig, SecretConfigField)
		}
	}
	return nil
}

func (p *localModelProvider) Probe(ctx context.Context, cfg map[string]any) error {
	base := p.defaultBaseURL
	if s, ok := configString(cfg, "baseUrl"); ok && s != "" {
		base = strings.TrimRight(s, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		return err
	}
	if key, ok := configString(cfg, SecretConfigField); ok && key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	// 4xx still proves the server is reachable; local servers disagree on
	// which listing endpoint they expose.
	return nil
}
