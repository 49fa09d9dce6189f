package storage

import "errors"

var (
	// ErrNotFound is returned when a row with the requested key does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a conditional write lost a race or a
	// uniqueness constraint rejected the row.
	ErrConflict = errors.New("storage: write conflict")
)
