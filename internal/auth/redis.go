package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"modelgate.org/internal/ids"
	"modelgate.org/internal/obs"
)

const (
	refreshKeyPrefix     = "refresh:"
	refreshUserKeyPrefix = "refresh:user:"
)

var _ RefreshTokenStore = (*RedisRefreshTokenStore)(nil)

// RedisRefreshTokenStore implements RefreshTokenStore on Redis for
// deployments that run sessions out of Redis instead of PostgreSQL. Each
// record lives in a hash keyed by the token digest with a key TTL equal to
// the token lifetime, so expired records disappear without a sweep. Rotation
// atomicity comes from WATCH on the record key: when two rotations race, the
// loser's transaction aborts on the concurrent write and retries against the
// now-revoked record.
type RedisRefreshTokenStore struct {
	client     *redis.Client
	tokenBytes int
	ttl        time.Duration
	now        func() time.Time
}

// RedisRefreshOption configures the Redis-backed refresh store.
type RedisRefreshOption func(*RedisRefreshTokenStore)

// WithRedisRefreshTTL overrides the refresh token lifetime.
func WithRedisRefreshTTL(ttl time.Duration) RedisRefreshOption {
	return func(s *RedisRefreshTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisRefreshTokenBytes overrides the raw token length.
func WithRedisRefreshTokenBytes(n int) RedisRefreshOption {
	return func(s *RedisRefreshTokenStore) {
		if n > 0 {
			s.tokenBytes = n
		}
	}
}

// WithRedisRefreshClock overrides the time source.
func WithRedisRefreshClock(fn func() time.Time) RedisRefreshOption {
	return func(s *RedisRefreshTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewRedisRefreshTokenStore pings the server and returns the store.
func NewRedisRefreshTokenStore(client *redis.Client, opts ...RedisRefreshOption) (*RedisRefreshTokenStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	s := &RedisRefreshTokenStore{
		client:     client,
		tokenBytes: DefaultRefreshTokenBytes,
		ttl:        DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisRefreshTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	raw, hash, err := newRawRefreshToken(s.tokenBytes)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := refreshKeyPrefix + hash
		pipe.HSet(ctx, key, map[string]any{
			"id":         ids.New(),
			"user_id":    userID,
			"expires_at": strconv.FormatInt(now.Add(s.ttl).Unix(), 10),
			"revoked":    "0",
			"created_at": strconv.FormatInt(now.Unix(), 10),
		})
		pipe.Expire(ctx, key, s.ttl)
		pipe.SAdd(ctx, refreshUserKeyPrefix+userID, hash)
		pipe.Expire(ctx, refreshUserKeyPrefix+userID, s.ttl)
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *RedisRefreshTokenStore) Resolve(ctx context.Context, raw string) (*RefreshToken, error) {
	hash := hashRefreshToken(raw)
	fields, err := s.client.HGetAll(ctx, refreshKeyPrefix+hash).Result()
	if err != nil {
		return nil, err
	}
	rec, ok := recordFromFields(hash, fields)
	if !ok || rec.Revoked || !rec.ExpiresAt.After(s.now().UTC()) {
		return nil, ErrInvalidToken
	}
	return rec, nil
}

func (s *RedisRefreshTokenStore) Rotate(ctx context.Context, raw string) (string, string, error) {
	hash := hashRefreshToken(raw)
	key := refreshKeyPrefix + hash
	now := s.now().UTC()

	var newRaw, userID string
	rotate := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		rec, ok := recordFromFields(hash, fields)
		if !ok {
			return ErrInvalidToken
		}
		if rec.Revoked {
			if err := s.revokeAll(ctx, rec.UserID); err != nil {
				return err
			}
			obs.CountSession("refresh_replay")
			return errTokenReplayed
		}
		if !rec.ExpiresAt.After(now) {
			return ErrInvalidToken
		}

		freshRaw, freshHash, err := newRawRefreshToken(s.tokenBytes)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "revoked", "1")
			newKey := refreshKeyPrefix + freshHash
			pipe.HSet(ctx, newKey, map[string]any{
				"id":         ids.New(),
				"user_id":    rec.UserID,
				"expires_at": strconv.FormatInt(now.Add(s.ttl).Unix(), 10),
				"revoked":    "0",
				"created_at": strconv.FormatInt(now.Unix(), 10),
			})
			pipe.Expire(ctx, newKey, s.ttl)
			pipe.SAdd(ctx, refreshUserKeyPrefix+rec.UserID, freshHash)
			pipe.Expire(ctx, refreshUserKeyPrefix+rec.UserID, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		newRaw, userID = freshRaw, rec.UserID
		return nil
	}

	// One retry: an aborted WATCH means a concurrent writer touched the
	// record, and the second attempt will observe the revoked state.
	err := s.client.Watch(ctx, rotate, key)
	if err == redis.TxFailedErr {
		err = s.client.Watch(ctx, rotate, key)
	}
	if err != nil {
		return "", "", err
	}
	return newRaw, userID, nil
}

func (s *RedisRefreshTokenStore) Revoke(ctx context.Context, raw string) error {
	key := refreshKeyPrefix + hashRefreshToken(raw)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return err
	}
	return s.client.HSet(ctx, key, "revoked", "1").Err()
}

func (s *RedisRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.revokeAll(ctx, userID)
}

func (s *RedisRefreshTokenStore) revokeAll(ctx context.Context, userID string) error {
	hashes, err := s.client.SMembers(ctx, refreshUserKeyPrefix+userID).Result()
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range hashes {
			pipe.HSet(ctx, refreshKeyPrefix+h, "revoked", "1")
		}
		return nil
	})
	return err
}

// SweepExpired is a no-op for Redis: record keys carry a TTL equal to the
// token lifetime, so expiry deletion happens server-side.
func (s *RedisRefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func recordFromFields(hash string, fields map[string]string) (*RefreshToken, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, false
	}
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return &RefreshToken{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		TokenHash: hash,
		ExpiresAt: time.Unix(expires, 0).UTC(),
		Revoked:   fields["revoked"] == "1",
		CreatedAt: time.Unix(created, 0).UTC(),
	}, true
}
