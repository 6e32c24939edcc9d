package executor

import (
	"fmt"
	"strings"

	"github.com/JaimeStill/refine/internal/pipeline"
	"github.com/JaimeStill/refine/internal/stages"
)

// ComposePrompt builds the user message for a stage: the stage instructions,
// the selected document fields, results of earlier stages, guidance, and for a
// refinement the refinement prompt with the critique to address.
func ComposePrompt(sc pipeline.StageContext, deps pipeline.Dependencies) (string, error) {
	instructions, err := deps.LookupPrompt(sc.Config.PromptSource, sc.Stage)
	if err != nil {
		return "", fmt.Errorf("load instructions for %s: %w", sc.Stage, err)
	}

	var sb strings.Builder
	sb.WriteString(instructions)

	if sc.Document != nil {
		fmt.Fprintf(&sb, "\n\nDocument: %s\n\n", sc.Document.Label)
		sb.WriteString(sc.Document.Render(sc.FieldSelection))
	}

	if sc.Refinement && deps.RefinementPrompt != nil {
		sb.WriteString("\n\n")
		sb.WriteString(deps.RefinementPrompt())
		if sc.IterationCount > 0 {
			fmt.Fprintf(&sb, " This is refinement pass %d.", sc.IterationCount)
		}
	}

	for _, stage := range stages.All() {
		r, ok := sc.PreviousResults[stage]
		if !ok || r.Failed() || r.Output == "" {
			continue
		}
		if stage == sc.Stage && !sc.Refinement {
			continue
		}
		fmt.Fprintf(&sb, "\n\nPrevious %s result:\n\n%s", stage, r.Output)
	}

	if sc.Guidance != "" {
		sb.WriteString("\n\nGuidance from the editor:\n\n")
		sb.WriteString(sc.Guidance)
	}

	return sb.String(), nil
}
