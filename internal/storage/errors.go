package storage

import "errors"

var (
	// ErrDuplicate is returned when attempting to create a resource that already exists.
	ErrDuplicate = errors.New("resource already exists")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when a conditional update matched no row,
	// meaning the identity's status or nonce changed since it was read.
	ErrConflict = errors.New("identity state changed concurrently")
)
