package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"modelgate.org/internal/audit"
	"modelgate.org/internal/ids"
	"modelgate.org/internal/obs"
	"modelgate.org/internal/stream"
)

// Service orchestrates the session lifecycle: sign-up, sign-in, refresh and
// sign-out. It owns no persistence of its own; user and token state live in
// the injected stores, and the access token layer stays stateless.
type Service struct {
	users      UserStore
	tokens     RefreshTokenStore
	access     *AccessTokens
	events     *stream.Stream
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures the session service.
type ServiceOption func(*Service)

// WithEventStream publishes session lifecycle events to the given stream.
func WithEventStream(s *stream.Stream) ServiceOption {
	return func(svc *Service) { svc.events = s }
}

// WithRefreshLifetime sets the refresh expiry reported to clients. It must
// match the TTL configured on the refresh token store.
func WithRefreshLifetime(ttl time.Duration) ServiceOption {
	return func(svc *Service) {
		if ttl > 0 {
			svc.refreshTTL = ttl
		}
	}
}

// WithServiceClock overrides the time source.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(svc *Service) {
		if fn != nil {
			svc.now = fn
		}
	}
}

// NewService wires the session service over its stores and token layer.
func NewService(users UserStore, tokens RefreshTokenStore, access *AccessTokens, opts ...ServiceOption) *Service {
	svc := &Service{users: users, tokens: tokens, access: access, refreshTTL: DefaultRefreshTTL, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AccessTTL returns the configured access token lifetime, for cookie Max-Age.
func (s *Service) AccessTTL() time.Duration { return s.access.TTL() }

// RefreshTTL returns the refresh token lifetime reported to clients.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *Service) publish(evt stream.SecurityEvent) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

// SignUp registers a new account and opens its first session. A duplicate
// email surfaces as ErrAlreadyExists.
func (s *Service) SignUp(ctx context.Context, reg Registration) (*User, *TokenPair, error) {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if reg.Email == "" || reg.Password == "" {
		return nil, nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(reg.Email); err != nil {
		return nil, nil, ErrInvalidInput
	}
	if len(reg.Password) < 8 {
		return nil, nil, ErrInvalidInput
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Email:        reg.Email,
		PasswordHash: hash,
		Roles:        []string{RoleUser},
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	obs.CountSession("sign_up")
	s.publish(stream.SecurityEvent{Type: stream.EventSignUp, UserID: user.ID})
	_ = audit.LogEvent(ctx, "auth.sign_up", map[string]any{"email": user.Email})
	return user, pair, nil
}

// SignIn verifies the credentials and opens a new session. Existing sessions
// on other devices stay valid; only a presented stale refresh token (left in
// the client's cookie jar) is revoked before issuance. Unknown email, wrong
// password and disabled account all surface as ErrUnauthorized.
func (s *Service) SignIn(ctx context.Context, email, password, presentedRefresh string) (*User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, ErrUnauthorized
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, nil, ErrUnauthorized
	}
	if !user.Enabled {
		return nil, nil, ErrUnauthorized
	}

	if presentedRefresh != "" {
		// Best effort: the stale cookie may reference a token already gone.
		_ = s.tokens.Revoke(ctx, presentedRefresh)
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	obs.CountSession("sign_in")
	s.publish(stream.SecurityEvent{Type: stream.EventSignIn, UserID: user.ID})
	_ = audit.LogEvent(ctx, "auth.sign_in", map[string]any{"email": user.Email})
	return user, pair, nil
}

// Refresh rotates the presented refresh token and mints a fresh access token.
// The store handles replay detection; a disabled account invalidates the
// session even when the token itself is still live.
func (s *Service) Refresh(ctx context.Context, presentedRefresh string) (*TokenPair, error) {
	if strings.TrimSpace(presentedRefresh) == "" {
		return nil, ErrInvalidToken
	}
	newRaw, userID, err := s.tokens.Rotate(ctx, presentedRefresh)
	if err != nil {
		// Only a genuine replay (revoked token presented again) is a theft
		// signal; plain unknown or expired tokens stay off the event feed.
		if errors.Is(err, errTokenReplayed) {
			s.publish(stream.SecurityEvent{Type: stream.EventRefreshReplay, Detail: "revoked token replayed"})
		}
		return nil, err
	}

	user, err := s.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.Enabled {
		_ = s.tokens.RevokeAllForUser(ctx, userID)
		return nil, ErrInvalidToken
	}

	accessToken, accessExp, err := s.access.Issue(userID)
	if err != nil {
		return nil, err
	}

	obs.CountSession("refresh")
	s.publish(stream.SecurityEvent{Type: stream.EventRefresh, UserID: userID})
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newRaw,
		RefreshExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}, nil
}

// SignOut revokes the presented refresh token. Idempotent: an unknown or
// already-revoked token still succeeds, since the end state is identical.
func (s *Service) SignOut(ctx context.Context, presentedRefresh string) error {
	if strings.TrimSpace(presentedRefresh) == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, presentedRefresh); err != nil {
		return err
	}
	obs.CountSession("sign_out")
	s.publish(stream.SecurityEvent{Type: stream.EventSignOut})
	_ = audit.LogEvent(ctx, "auth.sign_out", nil)
	return nil
}

// RevokeAllSessions force-closes every session of a user. Used by the admin
// disable flow and by the replay response.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	obs.CountSession("revoke_all")
	s.publish(stream.SecurityEvent{Type: stream.EventRevokeAll, UserID: userID})
	_ = audit.LogEvent(ctx, "auth.revoke_all", map[string]any{"target_user_id": userID})
	return nil
}

// SweepSessions hard-deletes expired refresh tokens and reports how many
// were removed. Invoked from the sweep binary and the admin surface.
func (s *Service) SweepSessions(ctx context.Context) (int64, error) {
	removed, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		_ = audit.LogEvent(ctx, "auth.sweep", map[string]any{"removed": removed})
	}
	return removed, nil
}

// VerifyAccess resolves an access token to its principal. The user record is
// consulted so a disabled account drops to anonymous immediately, without
// waiting for the token to expire.
func (s *Service) VerifyAccess(ctx context.Context, token string) (Principal, error) {
	userID, err := s.access.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if !user.Enabled {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: user.ID, Roles: user.Roles}, nil
}

// Users exposes the user store for the HTTP and admin layers.
func (s *Service) Users() UserStore { return s.users }

func (s *Service) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	accessToken, accessExp, err := s.access.Issue(userID)
	if err != nil {
		return nil, err
	}
	refreshRaw, err := s.tokens.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshRaw,
		RefreshExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}, nil
}
