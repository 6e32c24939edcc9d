package prompts

import "github.com/JaimeStill/refine/internal/stages"

const evaluateSchema = `{
  "type": "object",
  "properties": {
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "key": {"type": "string"},
          "clarity": {"type": "integer", "minimum": 1, "maximum": 5},
          "notes": {"type": "string"}
        },
        "required": ["key", "clarity", "notes"],
        "additionalProperties": false
      }
    },
    "priorities": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["fields", "priorities"],
  "additionalProperties": false
}`

const transformSchema = `{
  "type": "object",
  "properties": {
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "key": {"type": "string"},
          "value": {"type": "string"}
        },
        "required": ["key", "value"],
        "additionalProperties": false
      }
    }
  },
  "required": ["fields"],
  "additionalProperties": false
}`

const critiqueSchema = `{
  "type": "object",
  "properties": {
    "score": {"type": "integer", "minimum": 1, "maximum": 5},
    "summary": {"type": "string"},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "field": {"type": "string"},
          "problem": {"type": "string"},
          "suggestion": {"type": "string"}
        },
        "required": ["field", "problem", "suggestion"],
        "additionalProperties": false
      }
    }
  },
  "required": ["score", "summary", "issues"],
  "additionalProperties": false
}`

var schemas = map[stages.Stage]string{
	stages.Evaluate:  evaluateSchema,
	stages.Transform: transformSchema,
	stages.Critique:  critiqueSchema,
}

// Schema returns the built-in JSON schema for stage output.
// Returns stages.ErrInvalidStage for an unknown stage.
func Schema(stage stages.Stage) (string, error) {
	text, ok := schemas[stage]
	if !ok {
		return "", stages.ErrInvalidStage
	}
	return text, nil
}
