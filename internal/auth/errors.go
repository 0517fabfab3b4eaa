package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")

	// ErrInvalidToken covers every refresh/access verification failure:
	// unknown, malformed, expired and revoked tokens all collapse into this
	// one error so callers cannot probe which case applied.
	ErrInvalidToken = errors.New("auth: invalid token")

	// errTokenReplayed marks rotation of an already-revoked token. It wraps
	// ErrInvalidToken so nothing outside the package can tell the cases
	// apart; the session service uses it to flag the theft signal on the
	// security event stream without over-reporting plain rejections.
	errTokenReplayed = fmt.Errorf("%w (replayed)", ErrInvalidToken)
)
