// Package stages defines the three pipeline stages, their run status, their
// per-stage configuration, and the immutable result each run produces.
package stages

import (
	"encoding/json"
	"slices"
)

// Stage names one step of the evaluate → transform → critique pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	Evaluate  Stage = "evaluate"
	Transform Stage = "transform"
	Critique  Stage = "critique"
)

var all = []Stage{
	Evaluate,
	Transform,
	Critique,
}

// All returns the stages in pipeline order. The slice is a fresh copy.
func All() []Stage {
	return slices.Clone(all)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return slices.Contains(all, s)
}

// UnmarshalJSON rejects unknown stage names.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalText lets Stage be used as a map key in JSON and TOML documents.
func (s *Stage) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Parse validates a string as a known stage.
func Parse(s string) (Stage, error) {
	v := Stage(s)
	if !v.Valid() {
		return "", ErrInvalidStage
	}
	return v, nil
}

// Status is the run state of one stage: pending → running → complete | error.
type Status string

const (
	Pending  Status = "pending"
	Running  Status = "running"
	Complete Status = "complete"
	Failed   Status = "error"
)

// Config selects the instructions and output schema a stage runs with.
// Empty sources resolve to the built-in defaults.
type Config struct {
	PromptSource     string `json:"prompt_source" toml:"prompt_source"`
	SchemaSource     string `json:"schema_source" toml:"schema_source"`
	StructuredOutput bool   `json:"structured_output" toml:"structured_output"`
}

// DefaultConfigs returns a config for every stage using the built-in sources.
// Critique requests structured output so its issues can be fed back into
// refinement runs.
func DefaultConfigs() map[Stage]Config {
	return map[Stage]Config{
		Evaluate:  {PromptSource: "default", SchemaSource: "default"},
		Transform: {PromptSource: "default", SchemaSource: "default"},
		Critique:  {PromptSource: "default", SchemaSource: "default", StructuredOutput: true},
	}
}

// PendingStatus returns a status map with every stage pending.
func PendingStatus() map[Stage]Status {
	m := make(map[Stage]Status, len(all))
	for _, s := range all {
		m[s] = Pending
	}
	return m
}
