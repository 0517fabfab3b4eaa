package target

import "errors"

var (
	ErrNotFound        = errors.New("target: not found")
	ErrAlreadyExists   = errors.New("target: already exists")
	ErrInvalidConfig   = errors.New("target: invalid config")
	ErrUnknownProvider = errors.New("target: unknown provider")
)
