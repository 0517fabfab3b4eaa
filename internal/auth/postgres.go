package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"modelgate.org/internal/ids"
	"modelgate.org/internal/obs"
)

var _ UserStore = (*PGUserStore)(nil)

// PGUserStore implements UserStore using PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

func (s *PGUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{RoleUser}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, first_name, last_name, email, password_hash, enabled)
		 values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Enabled,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	for _, role := range u.Roles {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role) values($1,$2) on conflict do nothing`,
			u.ID, role,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGUserStore) Find(ctx context.Context, id string) (*User, error) {
	return s.findBy(ctx, `where id=$1`, id)
}

func (s *PGUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findBy(ctx, `where email=$1`, strings.TrimSpace(strings.ToLower(email)))
}

func (s *PGUserStore) findBy(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, first_name, last_name, email, password_hash, enabled, created_at, updated_at
		 from users `+where, arg)
	var u User
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.Enabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	roles, err := s.roles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *PGUserStore) roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select role from user_roles where user_id=$1 order by role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PGUserStore) List(ctx context.Context, limit, offset int) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, first_name, last_name, email, password_hash, enabled, created_at, updated_at
		 from users order by created_at asc limit $1 offset $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
			&u.Enabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range users {
		roles, err := s.roles(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.Roles = roles
	}
	return users, nil
}

func (s *PGUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *PGUserStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set enabled=$2, updated_at=now() where id=$1`, userID, enabled)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

var _ RefreshTokenStore = (*PGRefreshTokenStore)(nil)

// PGRefreshTokenStore implements RefreshTokenStore using PostgreSQL. Rotation
// runs inside a transaction with the matched row locked, so two racing Rotate
// calls on the same raw token cannot both succeed: the loser blocks on the
// lock and then observes the revoked record.
type PGRefreshTokenStore struct {
	db         *sql.DB
	tokenBytes int
	ttl        time.Duration
	now        func() time.Time
}

// RefreshStoreOption configures token length, lifetime and clock.
type RefreshStoreOption func(*PGRefreshTokenStore)

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) RefreshStoreOption {
	return func(s *PGRefreshTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRefreshTokenBytes overrides the raw token length.
func WithRefreshTokenBytes(n int) RefreshStoreOption {
	return func(s *PGRefreshTokenStore) {
		if n > 0 {
			s.tokenBytes = n
		}
	}
}

// WithRefreshClock overrides the time source (useful for tests).
func WithRefreshClock(fn func() time.Time) RefreshStoreOption {
	return func(s *PGRefreshTokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewPGRefreshTokenStore(db *sql.DB, opts ...RefreshStoreOption) *PGRefreshTokenStore {
	s := &PGRefreshTokenStore{
		db:         db,
		tokenBytes: DefaultRefreshTokenBytes,
		ttl:        DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured refresh token lifetime.
func (s *PGRefreshTokenStore) TTL() time.Duration { return s.ttl }

func (s *PGRefreshTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	raw, hash, err := newRawRefreshToken(s.tokenBytes)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, revoked)
		 values($1,$2,$3,$4,false)`,
		ids.New(), userID, hash, s.now().UTC().Add(s.ttl),
	)
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *PGRefreshTokenStore) Resolve(ctx context.Context, raw string) (*RefreshToken, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrInvalidToken
	}
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, revoked, created_at, updated_at
		 from refresh_tokens
		 where token_hash=$1 and revoked=false and expires_at > $2`,
		hashRefreshToken(raw), s.now().UTC(),
	)
	var rec RefreshToken
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt,
		&rec.Revoked, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &rec, nil
}

func (s *PGRefreshTokenStore) Rotate(ctx context.Context, raw string) (string, string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", "", ErrInvalidToken
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select id, user_id, expires_at, revoked from refresh_tokens
		 where token_hash=$1 for update`, hashRefreshToken(raw))
	var (
		id, userID string
		expiresAt  time.Time
		revoked    bool
	)
	if err := row.Scan(&id, &userID, &expiresAt, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrInvalidToken
		}
		return "", "", err
	}

	if revoked {
		// A revoked token presented for rotation is a replay and a likely
		// theft signal: invalidate every session of the owning user.
		if _, err := tx.ExecContext(ctx,
			`update refresh_tokens set revoked=true, updated_at=$2 where user_id=$1 and revoked=false`,
			userID, now,
		); err != nil {
			return "", "", err
		}
		if err := tx.Commit(); err != nil {
			return "", "", err
		}
		obs.CountSession("refresh_replay")
		return "", "", errTokenReplayed
	}
	if !expiresAt.After(now) {
		return "", "", ErrInvalidToken
	}

	if _, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked=true, updated_at=$2 where id=$1`, id, now,
	); err != nil {
		return "", "", err
	}

	newRaw, newHash, err := newRawRefreshToken(s.tokenBytes)
	if err != nil {
		return "", "", err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, revoked)
		 values($1,$2,$3,$4,false)`,
		ids.New(), userID, newHash, now.Add(s.ttl),
	); err != nil {
		return "", "", err
	}
	if err := tx.Commit(); err != nil {
		return "", "", err
	}
	return newRaw, userID, nil
}

func (s *PGRefreshTokenStore) Revoke(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	// Unknown hashes affect zero rows; revoking an absent token is a no-op.
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, updated_at=$2 where token_hash=$1 and revoked=false`,
		hashRefreshToken(raw), s.now().UTC(),
	)
	return err
}

func (s *PGRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, updated_at=$2 where user_id=$1 and revoked=false`,
		userID, s.now().UTC(),
	)
	return err
}

func (s *PGRefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
