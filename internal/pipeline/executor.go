package pipeline

import (
	"context"

	"github.com/JaimeStill/refine/internal/documents"
	"github.com/JaimeStill/refine/internal/prompts"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/pkg/cancel"
)

// StageContext is everything an executor needs to run one stage. It is built
// from a state snapshot and never refers back to live state.
type StageContext struct {
	Document        *documents.Document
	FieldSelection  []string
	Stage           stages.Stage
	Config          stages.Config
	PreviousResults map[stages.Stage]stages.Result
	IterationCount  int
	Guidance        string
	// Refinement asks a transform to address the critique in PreviousResults.
	Refinement bool
}

// Dependencies resolve the prompt material a stage is built from.
type Dependencies struct {
	LookupPrompt     func(source string, stage stages.Stage) (string, error)
	LookupSchema     func(source string, stage stages.Stage) (string, error)
	SystemPrompt     func() string
	RefinementPrompt func() string
}

// DependenciesFrom binds Dependencies to a prompt registry.
func DependenciesFrom(r *prompts.Registry) Dependencies {
	return Dependencies{
		LookupPrompt:     r.LookupPrompt,
		LookupSchema:     r.LookupSchema,
		SystemPrompt:     r.SystemPrompt,
		RefinementPrompt: r.RefinementPrompt,
	}
}

// Options carry the run's cancellation token and a progress sink.
type Options struct {
	Token      *cancel.Token
	OnProgress func(message string)
}

// Progress reports message when a progress sink is set.
func (o Options) Progress(message string) {
	if o.OnProgress != nil {
		o.OnProgress(message)
	}
}

// Executor produces the result of one stage. Implementations observe
// ctx, which is the token's context, and stop promptly once it is done.
// A returned error is recorded as a failed result for the stage.
type Executor interface {
	Execute(ctx context.Context, sc StageContext, deps Dependencies, opts Options) (stages.Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, sc StageContext, deps Dependencies, opts Options) (stages.Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, sc StageContext, deps Dependencies, opts Options) (stages.Result, error) {
	return f(ctx, sc, deps, opts)
}
