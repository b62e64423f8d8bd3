package store

import "errors"

// Errors every backend normalizes its driver failures to. Callers classify
// with errors.Is.
var (
	// ErrNotFound indicates no record exists with the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates an update lost an optimistic-concurrency race:
	// the record moved past the version the caller observed.
	ErrConflict = errors.New("record version conflict")

	// ErrUnknownKind indicates a record kind the store does not manage.
	ErrUnknownKind = errors.New("unknown record kind")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("store client is closed")
)
