package pipeline

import "github.com/JaimeStill/refine/internal/stages"

// Callbacks observe a pipeline run. Every field is optional.
type Callbacks struct {
	OnStageStart      func(stage stages.Stage)
	OnStageComplete   func(stage stages.Stage, result stages.Result)
	OnError           func(stage stages.Stage, message string)
	OnProgress        func(stage stages.Stage, message string)
	OnIterateComplete func(result IterateResult)
}

// IterateResult holds the two results of a quick iterate. A nil field means
// that step did not produce a recorded result.
type IterateResult struct {
	Transform *stages.Result
	Critique  *stages.Result
}

func (c Callbacks) stageStart(stage stages.Stage) {
	if c.OnStageStart != nil {
		c.OnStageStart(stage)
	}
}

func (c Callbacks) stageComplete(stage stages.Stage, r stages.Result) {
	if c.OnStageComplete != nil {
		c.OnStageComplete(stage, r)
	}
}

func (c Callbacks) error(stage stages.Stage, msg string) {
	if c.OnError != nil {
		c.OnError(stage, msg)
	}
}

func (c Callbacks) progress(stage stages.Stage) func(string) {
	if c.OnProgress == nil {
		return nil
	}
	return func(msg string) { c.OnProgress(stage, msg) }
}

func (c Callbacks) iterateComplete(r IterateResult) {
	if c.OnIterateComplete != nil {
		c.OnIterateComplete(r)
	}
}
