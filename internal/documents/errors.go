package documents

import "errors"

// Domain errors for document loading.
var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidFile  = errors.New("invalid document")
	ErrDuplicateKey = errors.New("duplicate field key")
	ErrFileTooLarge = errors.New("document exceeds maximum size")
)
