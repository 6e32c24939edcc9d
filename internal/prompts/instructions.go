package prompts

import "github.com/JaimeStill/refine/internal/stages"

const systemPrompt = `You are an editor working through a structured document one pass at a time. Each request names the pass you are performing, the document fields in scope, and any results from earlier passes. Work only with the fields provided and never invent facts that are not supported by the document.`

const evaluateInstructions = `Evaluate the document fields below.

For each field, assess:
- Clarity: is the text easy to follow on first read?
- Accuracy: are claims internally consistent across fields?
- Completeness: is anything a reader would expect missing?
- Tone: is the register consistent and appropriate for the document?

Finish with a short prioritized list of the changes that would most improve the document.`

const transformInstructions = `Rewrite the document fields below.

Apply the evaluation findings provided with this request. Preserve every fact in the original fields, keep each field's purpose, and keep field keys unchanged. Return every field in scope, rewritten, in the same order, formatted as "key: value" blocks separated by blank lines.`

const critiqueInstructions = `Critique the rewritten document fields against the original fields.

Identify regressions (lost facts, changed meaning, new errors) before stylistic issues. Score the rewrite from 1 (worse than the original) to 5 (ready to publish). Every issue must name the field it applies to and give an actionable suggestion.`

const refinementPrompt = `This is a refinement pass. The previous rewrite was critiqued and the critique is included below. Address every issue it raises while keeping the improvements the rewrite already made. Do not reintroduce problems the evaluation identified.`

var instructions = map[stages.Stage]string{
	stages.Evaluate:  evaluateInstructions,
	stages.Transform: transformInstructions,
	stages.Critique:  critiqueInstructions,
}

// Instructions returns the built-in instructions for stage.
// Returns stages.ErrInvalidStage for an unknown stage.
func Instructions(stage stages.Stage) (string, error) {
	text, ok := instructions[stage]
	if !ok {
		return "", stages.ErrInvalidStage
	}
	return text, nil
}

// SystemPrompt returns the built-in system prompt shared by every stage.
func SystemPrompt() string {
	return systemPrompt
}

// RefinementPrompt returns the built-in preamble for refinement transforms.
func RefinementPrompt() string {
	return refinementPrompt
}
