package target

import (
	"context"
	"fmt"
	"strings"

	"modelgate.org/internal/audit"
	"modelgate.org/internal/crypto"
	"modelgate.org/internal/obs"
	"modelgate.org/internal/stream"
)

// CreateInput carries the fields accepted when registering a target.
type CreateInput struct {
	Name        string
	Description string
	Provider    string
	Config      map[string]any
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Description *string
	Config      map[string]any
}

// Service owns the target write and read paths. Writes validate the config
// against the provider schema and encrypt the credential field; reads always
// mask it. The stored blob is masked directly, so the plaintext credential is
// only ever materialized for a connection probe.
type Service struct {
	store  Store
	cipher *crypto.FieldCipher
	reg    *Registry
	events *stream.Stream
}

// ServiceOption configures the target service.
type ServiceOption func(*Service)

// WithEventStream publishes connection test results to the given stream.
func WithEventStream(s *stream.Stream) ServiceOption {
	return func(svc *Service) { svc.events = s }
}

// NewService wires the target service.
func NewService(store Store, cipher *crypto.FieldCipher, reg *Registry, opts ...ServiceOption) *Service {
	svc := &Service{store: store, cipher: cipher, reg: reg}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create validates, encrypts and persists a new target for userID. The
// returned target has the credential masked.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Target, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	provider, err := s.reg.ForKind(in.Provider)
	if err != nil {
		return nil, err
	}
	if in.Config == nil {
		in.Config = map[string]any{}
	}
	if err := provider.ValidateConfig(in.Config); err != nil {
		return nil, err
	}

	t := &Target{
		UserID:      userID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Provider:    in.Provider,
		Config:      in.Config,
		Status:      StatusUnverified,
	}
	t = t.clone() // own the config before mutating it
	if err := s.cipher.EncryptField(t.Config, SecretConfigField); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "target.create", map[string]any{
		"target_id": t.ID,
		"provider":  t.Provider,
	})
	return s.masked(t), nil
}

// Get returns the target with its credential masked.
func (s *Service) Get(ctx context.Context, userID, id string) (*Target, error) {
	t, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.masked(t), nil
}

// List returns the user's targets, all masked.
func (s *Service) List(ctx context.Context, userID string) ([]*Target, error) {
	ts, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.maskedAll(ts), nil
}

// ListAll is the admin view across users, masked like everything else.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]*Target, error) {
	ts, err := s.store.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.maskedAll(ts), nil
}

// Update applies a partial update. A masked credential in the incoming config
// means "unchanged": the previously stored ciphertext is kept. Plaintext is
// encrypted; a value that already looks encrypted passes through untouched.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Target, error) {
	t, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
		}
		t.Name = name
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.Config != nil {
		stored, _ := configString(t.Config, SecretConfigField)
		provider, err := s.reg.ForKind(t.Provider)
		if err != nil {
			return nil, err
		}
		if err := provider.ValidateConfig(in.Config); err != nil {
			return nil, err
		}
		next := make(map[string]any, len(in.Config))
		for k, v := range in.Config {
			next[k] = v
		}
		if incoming, ok := configString(next, SecretConfigField); ok && crypto.IsMasked(incoming) {
			if stored == "" {
				return nil, fmt.Errorf("%w: %s has no stored value to keep", ErrInvalidConfig, SecretConfigField)
			}
			next[SecretConfigField] = stored
		}
		if err := s.cipher.EncryptField(next, SecretConfigField); err != nil {
			return nil, err
		}
		t.Config = next
	}

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "target.update", map[string]any{"target_id": t.ID})
	return s.masked(t), nil
}

// Delete removes the given targets and reports how many existed.
func (s *Service) Delete(ctx context.Context, userID string, ids []string) (int64, error) {
	n, err := s.store.Delete(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		_ = audit.LogEvent(ctx, "target.delete", map[string]any{"count": n})
	}
	return n, nil
}

// TestConnection probes the provider with the decrypted credential and
// records the outcome on the target. The decrypted value lives only for the
// duration of the probe.
func (s *Service) TestConnection(ctx context.Context, userID, id string) (*Target, error) {
	t, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	provider, err := s.reg.ForKind(t.Provider)
	if err != nil {
		return nil, err
	}

	probeCfg := t.clone().Config
	s.cipher.DecryptField(probeCfg, SecretConfigField)

	status := StatusVerified
	detail := "ok"
	if probeErr := provider.Probe(ctx, probeCfg); probeErr != nil {
		status = StatusUnreachable
		detail = probeErr.Error()
		obs.LogRequest(map[string]any{
			"level":     "warn",
			"msg":       "target probe failed",
			"target_id": t.ID,
			"provider":  t.Provider,
			"error":     probeErr.Error(),
		})
	}
	if err := s.store.UpdateStatus(ctx, userID, id, status); err != nil {
		return nil, err
	}
	t.Status = status

	if s.events != nil {
		s.events.Publish(stream.SecurityEvent{
			Type:     stream.EventTargetTested,
			UserID:   userID,
			TargetID: t.ID,
			Detail:   detail,
		})
	}
	_ = audit.LogEvent(ctx, "target.test", map[string]any{
		"target_id": t.ID,
		"status":    status,
	})
	return s.masked(t), nil
}

func (s *Service) masked(t *Target) *Target {
	cp := t.clone()
	cp.Config = crypto.MaskField(cp.Config, SecretConfigField)
	return cp
}

func (s *Service) maskedAll(ts []*Target) []*Target {
	out := make([]*Target, len(ts))
	for i, t := range ts {
		out[i] = s.masked(t)
	}
	return out
}
