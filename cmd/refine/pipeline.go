package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/refine/internal/stages"
)

// latestSession selects the most recently updated session of the document.
const latestSession = "latest"

type pipelineOptions struct {
	session      string
	fields       []string
	guidance     string
	promptSource string
	schemaSource string
	structured   []string
	json         bool
}

func (o *pipelineOptions) bind(cmd *cobra.Command, defaultSession string) {
	f := cmd.Flags()
	f.StringVarP(&o.session, "session", "s", defaultSession, `Session ID to continue, or "latest"; empty starts a new session`)
	f.StringSliceVarP(&o.fields, "fields", "f", nil, "Field keys to include (default all)")
	f.StringVarP(&o.guidance, "guidance", "g", "", "Guidance passed to every stage")
	f.StringVar(&o.promptSource, "prompt-source", "", "Prompt source for every stage")
	f.StringVar(&o.schemaSource, "schema-source", "", "Schema source for every stage")
	f.StringSliceVar(&o.structured, "structured", nil, "Stages that request structured output")
	f.BoolVar(&o.json, "json", false, "Print results as JSON lines")
}

// prepare selects the document, activates the requested session, and applies
// the run settings on top of it.
func (o *pipelineOptions) prepare(ctx context.Context, cmd *cobra.Command, app *App, path string) error {
	if _, err := app.selectDocument(ctx, path); err != nil {
		return err
	}

	id, err := o.resolveSession(app)
	if err != nil {
		return err
	}
	if id != uuid.Nil {
		if err := app.manager.SwitchSession(ctx, id); err != nil {
			return fmt.Errorf("switch session: %w", err)
		}
	}

	if len(o.fields) > 0 {
		if err := app.manager.SetFieldSelection(o.fields); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("guidance") {
		app.manager.SetGuidance(o.guidance)
	}

	structured := make(map[stages.Stage]bool, len(o.structured))
	for _, name := range o.structured {
		stage, err := stages.Parse(name)
		if err != nil {
			return err
		}
		structured[stage] = true
	}

	st, err := app.store.GetState()
	if err != nil {
		return err
	}
	for _, stage := range stages.All() {
		cfg := st.ConfigFor(stage)
		if o.promptSource != "" {
			cfg.PromptSource = o.promptSource
		}
		if o.schemaSource != "" {
			cfg.SchemaSource = o.schemaSource
		}
		if cmd.Flags().Changed("structured") {
			cfg.StructuredOutput = structured[stage]
		}
		if err := app.manager.SetStageConfig(stage, cfg); err != nil {
			return err
		}
	}

	return nil
}

// resolveSession returns uuid.Nil when the run should start a new session:
// no session was requested, or "latest" was requested and none exist.
func (o *pipelineOptions) resolveSession(app *App) (uuid.UUID, error) {
	switch {
	case o.session == "":
		return uuid.Nil, nil
	case !strings.EqualFold(o.session, latestSession):
		id, err := uuid.Parse(o.session)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid session id %q: %w", o.session, err)
		}
		return id, nil
	}

	st, err := app.store.GetState()
	if err != nil {
		return uuid.Nil, err
	}
	if len(st.Sessions) == 0 {
		return uuid.Nil, nil
	}
	return st.Sessions[0].ID, nil
}

// withPipeline opens the app, prepares the document, and runs fn with a
// printer watching the store. The app is closed even when fn fails.
func withPipeline(
	cmd *cobra.Command,
	global *globalOptions,
	opts *pipelineOptions,
	path string,
	fn func(ctx context.Context, app *App, p *printer) error,
) (err error) {
	app, err := open(global)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.json)
	unwatch := p.watch(app.store)
	defer func() {
		err = errors.Join(err, app.Close())
		unwatch()
	}()

	if err := opts.prepare(ctx, cmd, app, path); err != nil {
		return err
	}
	return fn(ctx, app, p)
}

func runCmd(global *globalOptions) *cobra.Command {
	opts := &pipelineOptions{}
	var only []string

	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Run evaluate, transform, and critique in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list := stages.All()
			if len(only) > 0 {
				list = list[:0:0]
				for _, name := range only {
					stage, err := stages.Parse(name)
					if err != nil {
						return err
					}
					list = append(list, stage)
				}
			}

			return withPipeline(cmd, global, opts, args[0], func(ctx context.Context, app *App, p *printer) error {
				results := app.orchestrator.RunAllStages(ctx, list, p.callbacks())
				return checkResults(ctx, list, results)
			})
		},
	}

	opts.bind(cmd, "")
	cmd.Flags().StringSliceVar(&only, "stages", nil, "Stages to run, in order (default all)")
	return cmd
}

func stageCmd(global *globalOptions) *cobra.Command {
	opts := &pipelineOptions{}

	cmd := &cobra.Command{
		Use:       "stage <evaluate|transform|critique> <document>",
		Short:     "Run a single stage against a session",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(stages.Evaluate), string(stages.Transform), string(stages.Critique)},
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := stages.Parse(args[0])
			if err != nil {
				return err
			}

			return withPipeline(cmd, global, opts, args[1], func(ctx context.Context, app *App, p *printer) error {
				r := app.orchestrator.RunSingleStage(ctx, stage, p.callbacks())
				if r == nil {
					return runError(ctx, fmt.Errorf("%s did not run", stage))
				}
				if r.Failed() {
					return fmt.Errorf("%s failed: %s", stage, r.Error)
				}
				return nil
			})
		},
	}

	opts.bind(cmd, latestSession)
	return cmd
}

func iterateCmd(global *globalOptions) *cobra.Command {
	opts := &pipelineOptions{}
	var count int

	cmd := &cobra.Command{
		Use:   "iterate <document>",
		Short: "Refine the transform with the latest critique and critique it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be positive")
			}

			return withPipeline(cmd, global, opts, args[0], func(ctx context.Context, app *App, p *printer) error {
				for i := range count {
					r := app.orchestrator.RunQuickIterate(ctx, p.callbacks())
					if r.Transform == nil {
						if i == 0 {
							return runError(ctx, errors.New("quick iterate needs a successful critique; run all stages first"))
						}
						return runError(ctx, errors.New("quick iterate stopped"))
					}
					if r.Transform.Failed() {
						return fmt.Errorf("transform failed: %s", r.Transform.Error)
					}
					if r.Critique == nil {
						return runError(ctx, errors.New("critique did not run"))
					}
					if r.Critique.Failed() {
						return fmt.Errorf("critique failed: %s", r.Critique.Error)
					}
				}
				return nil
			})
		},
	}

	opts.bind(cmd, latestSession)
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of refinement passes")
	return cmd
}

func checkResults(ctx context.Context, list []stages.Stage, results map[stages.Stage]stages.Result) error {
	for _, stage := range list {
		r, ok := results[stage]
		if !ok {
			return runError(ctx, fmt.Errorf("%s did not run", stage))
		}
		if r.Failed() {
			return fmt.Errorf("%s failed: %s", stage, r.Error)
		}
	}
	return nil
}

// runError reports an interrupt in place of err when ctx was cancelled.
func runError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	return err
}
