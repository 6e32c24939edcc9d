package sessions

import "errors"

// Domain errors for session operations.
var (
	ErrNotFound        = errors.New("session not found")
	ErrDuplicate       = errors.New("session already exists")
	ErrMissingDocument = errors.New("session requires a document id")
	ErrArchiveTooLarge = errors.New("session archive exceeds maximum size")
)
