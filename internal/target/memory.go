package target

import (
	"context"
	"sort"
	"sync"
	"time"

	"modelgate.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and DSN-less dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]*Target
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[string]*Target)}
}

func (s *MemoryStore) Create(ctx context.Context, t *Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.targets {
		if existing.UserID == t.UserID && existing.Name == t.Name {
			return ErrAlreadyExists
		}
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Status == "" {
		t.Status = StatusUnverified
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.targets[t.ID] = t.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	return t.clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Target
	for _, t := range s.targets {
		if t.UserID == userID {
			out = append(out, t.clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) ListAll(ctx context.Context, limit, offset int) ([]*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Target, 0, len(s.targets))
	for _, t := range s.targets {
		all = append(all, t.clone())
	}
	sortByCreation(all)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) Update(ctx context.Context, t *Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.targets[t.ID]
	if !ok || existing.UserID != t.UserID {
		return ErrNotFound
	}
	for _, other := range s.targets {
		if other.ID != t.ID && other.UserID == t.UserID && other.Name == t.Name {
			return ErrAlreadyExists
		}
	}
	cp := t.clone()
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.targets[t.ID] = cp
	t.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string, targetIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range targetIDs {
		if t, ok := s.targets[id]; ok && t.UserID == userID {
			delete(s.targets, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, userID, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok || t.UserID != userID {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func sortByCreation(ts []*Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}
