package stages

import "errors"

// ErrInvalidStage indicates a value that is not evaluate, transform, or critique.
var ErrInvalidStage = errors.New("stage must be evaluate, transform, or critique")
