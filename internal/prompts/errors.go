package prompts

import "errors"

// Domain errors for prompt lookup.
var (
	ErrUnknownSource = errors.New("unknown prompt source")
	ErrInvalidSchema = errors.New("schema is not valid JSON")
)
