package auth

import "context"

// UserStore abstracts persistence for user accounts. The session coordinator
// only reads enabled/role state; it never mutates a principal beyond creation
// and password updates.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetEnabled(ctx context.Context, userID string, enabled bool) error
}

// RefreshTokenStore manages the stateful half of the session model.
//
// Implementations must guarantee that two racing Rotate calls on the same raw
// token produce at most one success; the loser observes the revoked record and
// fails. Not-found, expired and revoked all surface as ErrInvalidToken.
type RefreshTokenStore interface {
	// Issue persists a new active record for userID and returns the raw
	// opaque token. The raw value is never stored; only its hash is.
	Issue(ctx context.Context, userID string) (string, error)

	// Resolve returns the unique active, unexpired, unrevoked record whose
	// hash matches raw. Revocation and expiry are part of the lookup
	// predicate, not checked afterwards.
	Resolve(ctx context.Context, raw string) (*RefreshToken, error)

	// Rotate atomically revokes the record matching raw and issues a
	// replacement for the same user. Presenting an already-revoked token is
	// treated as a theft signal: every token of that user is revoked and
	// ErrInvalidToken is returned.
	Rotate(ctx context.Context, raw string) (newRaw string, userID string, err error)

	// Revoke marks the matching record revoked. Unknown tokens are a no-op.
	Revoke(ctx context.Context, raw string) error

	// RevokeAllForUser revokes every token belonging to userID.
	RevokeAllForUser(ctx context.Context, userID string) error

	// SweepExpired hard-deletes records past their expiry regardless of the
	// revoked flag. Run by an external scheduler, never on the request path.
	SweepExpired(ctx context.Context) (int64, error)
}
