package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"modelgate.org/internal/ids"
	"modelgate.org/internal/obs"
)

var _ UserStore = (*MemoryUserStore)(nil)

// MemoryUserStore is an in-memory UserStore for tests and DSN-less dev runs.
type MemoryUserStore struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.TrimSpace(strings.ToLower(u.Email))
	if _, ok := s.byEmail[email]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{RoleUser}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *MemoryUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.TrimSpace(strings.ToLower(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryUserStore) List(ctx context.Context, limit, offset int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryUserStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Enabled = enabled
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// SetRoles replaces the stored role set. There is no HTTP surface for role
// grants; dev setups and tests promote admins through the store directly.
func (s *MemoryUserStore) SetRoles(ctx context.Context, userID string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Roles = append([]string(nil), roles...)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

var _ RefreshTokenStore = (*MemoryRefreshTokenStore)(nil)

// MemoryRefreshTokenStore keeps refresh records in a map guarded by one
// mutex, which gives Rotate the same at-most-one-winner property the
// PostgreSQL store gets from row locking.
type MemoryRefreshTokenStore struct {
	mu         sync.Mutex
	byHash     map[string]*RefreshToken
	tokenBytes int
	ttl        time.Duration
	now        func() time.Time
}

// MemoryRefreshOption configures the in-memory refresh store.
type MemoryRefreshOption func(*MemoryRefreshTokenStore)

// WithMemoryRefreshTTL overrides the refresh token lifetime.
func WithMemoryRefreshTTL(ttl time.Duration) MemoryRefreshOption {
	return func(s *MemoryRefreshTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMemoryRefreshClock overrides the time source.
func WithMemoryRefreshClock(fn func() time.Time) MemoryRefreshOption {
	return func(s *MemoryRefreshTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewMemoryRefreshTokenStore(opts ...MemoryRefreshOption) *MemoryRefreshTokenStore {
	s := &MemoryRefreshTokenStore{
		byHash:     make(map[string]*RefreshToken),
		tokenBytes: DefaultRefreshTokenBytes,
		ttl:        DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryRefreshTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	raw, hash, err := newRawRefreshToken(s.tokenBytes)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[hash] = &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return raw, nil
}

func (s *MemoryRefreshTokenStore) Resolve(ctx context.Context, raw string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[hashRefreshToken(raw)]
	if !ok || rec.Revoked || !rec.ExpiresAt.After(s.now().UTC()) {
		return nil, ErrInvalidToken
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryRefreshTokenStore) Rotate(ctx context.Context, raw string) (string, string, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hashRefreshToken(raw)]
	if !ok {
		return "", "", ErrInvalidToken
	}
	if rec.Revoked {
		s.revokeAllLocked(rec.UserID, now)
		obs.CountSession("refresh_replay")
		return "", "", errTokenReplayed
	}
	if !rec.ExpiresAt.After(now) {
		return "", "", ErrInvalidToken
	}

	rec.Revoked = true
	rec.UpdatedAt = now

	newRaw, newHash, err := newRawRefreshToken(s.tokenBytes)
	if err != nil {
		return "", "", err
	}
	s.byHash[newHash] = &RefreshToken{
		ID:        ids.New(),
		UserID:    rec.UserID,
		TokenHash: newHash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return newRaw, rec.UserID, nil
}

func (s *MemoryRefreshTokenStore) Revoke(ctx context.Context, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byHash[hashRefreshToken(raw)]; ok {
		rec.Revoked = true
		rec.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(userID, s.now().UTC())
	return nil
}

func (s *MemoryRefreshTokenStore) revokeAllLocked(userID string, now time.Time) {
	for _, rec := range s.byHash {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			rec.UpdatedAt = now
		}
	}
}

func (s *MemoryRefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, rec := range s.byHash {
		if !rec.ExpiresAt.After(now) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}
