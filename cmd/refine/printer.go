package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/internal/pipeline"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/internal/workbench"
	"github.com/JaimeStill/refine/pkg/reactive"
)

// printer reports pipeline activity. Progress goes to errOut so that out
// carries only results.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	json    bool
	session uuid.UUID
}

func newPrinter(out, errOut io.Writer, asJSON bool) *printer {
	return &printer{out: out, errOut: errOut, json: asJSON}
}

func (p *printer) callbacks() pipeline.Callbacks {
	return pipeline.Callbacks{
		OnStageStart: func(stage stages.Stage) {
			p.status(stage, "running")
		},
		OnProgress: func(stage stages.Stage, msg string) {
			p.status(stage, msg)
		},
		OnStageComplete: func(stage stages.Stage, r stages.Result) {
			p.status(stage, "complete")
			p.result(r)
		},
		OnError: func(stage stages.Stage, msg string) {
			p.status(stage, "error: "+msg)
		},
		OnIterateComplete: func(pipeline.IterateResult) {
			p.status(stages.Critique, "iteration complete")
		},
	}
}

// watch reports the active session whenever it changes. It returns the
// unsubscribe function.
func (p *printer) watch(store *workbench.Store) func() {
	return store.Subscribe([]reactive.Slice{workbench.SliceSessions}, func() {
		st, ok := store.Snapshot()
		if !ok {
			return
		}
		sum, ok := st.ActiveSession()
		if !ok {
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if sum.ID == p.session {
			return
		}
		p.session = sum.ID
		fmt.Fprintf(p.errOut, "session %s (%s)\n", sum.ID, sum.DisplayName())
	})
}

func (p *printer) status(stage stages.Stage, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "[%s] %s\n", stage, msg)
}

func (p *printer) result(r stages.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		json.NewEncoder(p.out).Encode(r)
		return
	}

	header := string(r.Stage)
	if r.Refinement {
		header += " (refinement)"
	}
	fmt.Fprintf(p.out, "== %s ==\n%s\n\n", header, r.Output)
}
