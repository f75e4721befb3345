package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness violation (email, username, phone).
	ErrConflict = errors.New("repository: already exists")
	// ErrInvalidArgument indicates input the store cannot accept.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
