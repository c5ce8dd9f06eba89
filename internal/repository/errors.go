package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a uniqueness constraint rejected the write.
var ErrConflict = errors.New("repository: conflict")

// ErrInvalidArgument indicates the store refused malformed input.
var ErrInvalidArgument = errors.New("repository: invalid argument")
