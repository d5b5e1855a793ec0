package storage

import "errors"

var (
	// ErrNotFound means no journal record matches the lookup.
	ErrNotFound = errors.New("journal record not found")

	// ErrDuplicateKey means the record was already journaled. Entries are
	// never rewritten.
	ErrDuplicateKey = errors.New("journal record already exists")

	// ErrInvalidInput means a record failed validation before reaching a store.
	ErrInvalidInput = errors.New("invalid journal record")
)
