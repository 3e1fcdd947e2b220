package store

import "errors"

var (
	// ErrNotFound is returned for absent records and for ids that cannot
	// name a record in the backend (malformed ObjectIDs or UUIDs).
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("duplicate key")
)
