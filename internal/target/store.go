package target

import "context"

// Store abstracts target persistence. All lookups except ListAll are scoped
// by the owning user; an id belonging to someone else is indistinguishable
// from an absent one.
type Store interface {
	Create(ctx context.Context, t *Target) error
	Get(ctx context.Context, userID, id string) (*Target, error)
	List(ctx context.Context, userID string) ([]*Target, error)

	// ListAll is the admin view across users.
	ListAll(ctx context.Context, limit, offset int) ([]*Target, error)

	// Update persists name, description, config and status for an existing
	// target. ErrNotFound when the id does not exist under userID.
	Update(ctx context.Context, t *Target) error

	// Delete removes the given ids owned by userID and reports how many
	// actually existed.
	Delete(ctx context.Context, userID string, ids []string) (int64, error)

	UpdateStatus(ctx context.Context, userID, id, status string) error
}
