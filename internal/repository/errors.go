package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint is violated
	ErrDuplicate = errors.New("record already exists")

	// ErrInvalidData is returned when a record fails validation before persistence
	ErrInvalidData = errors.New("invalid record data")
)
