package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNotEmpty is returned by bootstrap inserts when accounts already exist.
	ErrNotEmpty = errors.New("store is not empty")
)
