package stages

import (
	"time"

	"github.com/google/uuid"
)

// Result records one stage execution. Results are values: once built they
// are never modified, and every copy held in history stays as recorded.
type Result struct {
	ID         uuid.UUID `json:"id"`
	Stage      Stage     `json:"stage"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Error      string    `json:"error,omitempty"`
	Refinement bool      `json:"refinement,omitempty"`
}

// NewResult builds a successful result stamped with a new ID and the current time.
func NewResult(stage Stage, input, output string) Result {
	return Result{
		ID:        uuid.New(),
		Stage:     stage,
		Timestamp: time.Now().UTC(),
		Input:     input,
		Output:    output,
	}
}

// NewErrorResult builds a failed result carrying msg.
func NewErrorResult(stage Stage, input, msg string) Result {
	r := NewResult(stage, input, "")
	r.Error = msg
	return r
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Status maps the result to the stage status it implies.
func (r Result) Status() Status {
	if r.Failed() {
		return Failed
	}
	return Complete
}
