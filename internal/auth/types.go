package auth

import "time"

// Role names assignable to users. The set is closed; anything else in the
// database is ignored by authorization checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account operating in the system. PasswordHash is a bcrypt hash;
// the plaintext password never leaves the sign-up/sign-in request scope.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Roles        []string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RefreshToken is the persisted half of a refresh credential. Only the
// SHA-256 hash of the raw value is stored; the raw value is handed to the
// client exactly once at issuance.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registration carries the sign-up request fields.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// TokenPair bundles the two credentials produced by sign-in, sign-up and
// refresh. RefreshToken is the raw opaque value, not its hash.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
