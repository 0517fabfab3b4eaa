package target

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"modelgate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL with the config held in a jsonb
// column. The (user_id, name) pair is unique, enforced by the schema.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, t *Target) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Status == "" {
		t.Status = StatusUnverified
	}
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into targets(id, user_id, name, description, provider, config, status)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.UserID, t.Name, t.Description, t.Provider, cfg, t.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, userID, id string) (*Target, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, name, description, provider, config, status, created_at, updated_at
		 from targets where id=$1 and user_id=$2`, id, userID)
	return scanTarget(row)
}

func (s *PGStore) List(ctx context.Context, userID string) ([]*Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, name, description, provider, config, status, created_at, updated_at
		 from targets where user_id=$1 order by created_at asc`, userID)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

func (s *PGStore) ListAll(ctx context.Context, limit, offset int) ([]*Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, name, description, provider, config, status, created_at, updated_at
		 from targets order by created_at asc limit $1 offset $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectTargets(rows)
}

func (s *PGStore) Update(ctx context.Context, t *Target) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update targets set name=$3, description=$4, config=$5, status=$6, updated_at=now()
		 where id=$1 and user_id=$2`,
		t.ID, t.UserID, t.Name, t.Description, cfg, t.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return requireRowAffected(res)
}

func (s *PGStore) Delete(ctx context.Context, userID string, targetIDs []string) (int64, error) {
	if len(targetIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`delete from targets where user_id=$1 and id = any($2)`, userID, targetIDs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGStore) UpdateStatus(ctx context.Context, userID, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`update targets set status=$3, updated_at=now() where id=$1 and user_id=$2`,
		id, userID, status)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*Target, error) {
	var (
		t   Target
		cfg []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.Provider,
		&cfg, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &t.Config); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func collectTargets(rows *sql.Rows) ([]*Target, error) {
	defer rows.Close()
	var targets []*Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
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
