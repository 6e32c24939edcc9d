// Package pipeline drives the evaluate, transform, and critique stages against
// workbench state. The Orchestrator owns run admission, the active
// cancellation token, stage status transitions, and result recording. Stage
// content is produced by an Executor.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/internal/workbench"
	"github.com/JaimeStill/refine/pkg/cancel"
)

// MessageCancelled is reported through OnError when a stage result is
// discarded because its run was aborted.
const MessageCancelled = "stage cancelled"

// SessionEnsurer provides the session a run records into.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context) (*sessions.Summary, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records stage activity in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs pipeline stages one run at a time. mu orders admission,
// release, abort, and result recording so that a run's writes never land after
// its token has been cancelled or replaced.
type Orchestrator struct {
	store    *workbench.Store
	sessions SessionEnsurer
	executor Executor
	deps     Dependencies
	metrics  *Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

// New creates an Orchestrator. ensurer may be nil, in which case runs are
// not attached to a session.
func New(
	store *workbench.Store,
	ensurer SessionEnsurer,
	executor Executor,
	deps Dependencies,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		sessions: ensurer,
		executor: executor,
		deps:     deps,
		logger:   logger.With("system", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunSingleStage runs one stage against the current state and returns its
// recorded result. Returns nil when the run is refused or cancelled.
func (o *Orchestrator) RunSingleStage(ctx context.Context, stage stages.Stage, cb Callbacks) *stages.Result {
	if !stage.Valid() {
		o.reject(ReasonInvalidStage, "unknown stage", "stage", stage)
		return nil
	}

	tok, ok := o.claim(ctx, nil)
	if !ok {
		return nil
	}
	defer o.release(tok)

	o.ensureSession(ctx)

	st, err := o.store.GetState()
	if err != nil {
		return nil
	}

	r, ok := o.execute(tok, contextFor(&st, stage, false), cb)
	if !ok {
		return nil
	}
	return &r
}

// RunAllStages runs list in order, each stage seeing only the results this
// run produced before it. The run stops at the first failed or cancelled
// stage. Returns the results recorded by this run, or nil when refused.
func (o *Orchestrator) RunAllStages(ctx context.Context, list []stages.Stage, cb Callbacks) map[stages.Stage]stages.Result {
	if len(list) == 0 {
		o.reject(ReasonNoStages, "no stages to run")
		return nil
	}
	if i := slices.IndexFunc(list, func(s stages.Stage) bool { return !s.Valid() }); i >= 0 {
		o.reject(ReasonInvalidStage, "unknown stage", "stage", list[i])
		return nil
	}

	tok, ok := o.claim(ctx, nil)
	if !ok {
		return nil
	}
	defer o.release(tok)

	o.ensureSession(ctx)

	o.whileActive(tok, func() {
		o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
			st.StageStatus = stages.PendingStatus()
		})
	})

	accumulated := make(map[stages.Stage]stages.Result, len(list))
	for _, stage := range list {
		if tok.Cancelled() {
			break
		}

		st, err := o.store.GetState()
		if err != nil {
			break
		}

		sc := contextFor(&st, stage, false)
		sc.PreviousResults = maps.Clone(accumulated)

		r, ok := o.execute(tok, sc, cb)
		if !ok {
			break
		}
		accumulated[stage] = r

		if r.Failed() {
			break
		}
	}

	return accumulated
}

// RunQuickIterate refines the transform against the latest critique and
// critiques the refinement. It requires a successful critique result. The
// iteration counter advances once the transform starts, whether or not the
// critique step runs.
func (o *Orchestrator) RunQuickIterate(ctx context.Context, cb Callbacks) IterateResult {
	tok, ok := o.claim(ctx, func(st *workbench.State) (string, string) {
		if r, ok := st.StageResults[stages.Critique]; !ok || r.Failed() {
			return ReasonNoCritique, "quick iterate requires a critique result"
		}
		return "", ""
	})
	if !ok {
		return IterateResult{}
	}
	defer o.release(tok)

	o.ensureSession(ctx)

	o.whileActive(tok, func() {
		o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
			st.IterationCount++
		})
		o.metrics.quickIteration()
	})

	st, err := o.store.GetState()
	if err != nil {
		return IterateResult{}
	}

	var res IterateResult

	tr, ok := o.execute(tok, contextFor(&st, stages.Transform, true), cb)
	if !ok {
		return res
	}
	res.Transform = &tr

	if tr.Failed() || tok.Cancelled() {
		return res
	}

	st, err = o.store.GetState()
	if err != nil {
		return res
	}

	csc := contextFor(&st, stages.Critique, false)
	csc.PreviousResults[stages.Transform] = tr

	cr, ok := o.execute(tok, csc, cb)
	if !ok {
		return res
	}
	res.Critique = &cr

	if !cr.Failed() {
		cb.iterateComplete(res)
	}
	return res
}

// Abort cancels the active run, clears the generating flag, and returns any
// running stage to pending. Results the aborted run produces afterwards are
// discarded. Calling Abort with nothing running is a no-op.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, err := o.store.GetState()
	if err != nil {
		return
	}
	if !st.IsGenerating && st.ActiveToken == nil {
		return
	}

	tok := st.ActiveToken
	tok.Cancel()

	o.store.SetState(workbench.SlicePipeline, func(next *workbench.State) {
		next.StageStatus = settle(next.StageStatus)
		next.IsGenerating = false
		next.ActiveToken = nil
	})

	o.logger.Info("pipeline aborted", "token", tok.ID())
}

// ResetPipeline returns every stage to pending and clears results and the
// iteration counter. It is refused while a run is active.
func (o *Orchestrator) ResetPipeline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, err := o.store.GetState()
	if err != nil {
		return false
	}
	if st.IsGenerating {
		o.logger.Warn("pipeline reset refused while generating")
		return false
	}

	o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
		st.ResetPipeline()
	})
	return true
}

// claim admits a run: a document must be selected, nothing may be generating,
// and check, when set, must pass. On success a fresh token becomes active.
func (o *Orchestrator) claim(ctx context.Context, check func(*workbench.State) (reason, msg string)) (*cancel.Token, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, err := o.store.GetState()
	if err != nil {
		o.logger.Warn("pipeline run before store init")
		return nil, false
	}

	if st.Document == nil {
		o.reject(ReasonNoDocument, "no document selected")
		return nil, false
	}
	if st.IsGenerating {
		o.reject(ReasonGenerating, "pipeline already running")
		return nil, false
	}
	if check != nil {
		if reason, msg := check(&st); reason != "" {
			o.reject(reason, msg)
			return nil, false
		}
	}

	tok := cancel.New(ctx)
	o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
		st.IsGenerating = true
		st.ActiveToken = tok
	})

	o.logger.Debug("pipeline run started", "token", tok.ID())
	return tok, true
}

// release ends tok's run. State is only touched when tok is still the
// active token; a newer run keeps ownership.
func (o *Orchestrator) release(tok *cancel.Token) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, err := o.store.GetState()
	if err == nil && st.ActiveToken == tok {
		o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
			st.StageStatus = settle(st.StageStatus)
			st.IsGenerating = false
			st.ActiveToken = nil
		})
	}

	tok.Cancel()
}

// whileActive runs fn under the run lock unless tok has been cancelled.
func (o *Orchestrator) whileActive(tok *cancel.Token, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if tok.Cancelled() {
		return false
	}
	fn()
	return true
}

// execute runs one stage under tok and records the outcome. The boolean is
// false when nothing was recorded because the run was cancelled.
func (o *Orchestrator) execute(tok *cancel.Token, sc StageContext, cb Callbacks) (stages.Result, bool) {
	stage := sc.Stage

	started := o.whileActive(tok, func() {
		o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
			status := maps.Clone(st.StageStatus)
			status[stage] = stages.Running
			st.StageStatus = status
		})
	})
	if !started {
		return stages.Result{}, false
	}

	cb.stageStart(stage)
	begin := time.Now()

	result, err := o.invoke(tok, sc, Options{
		Token:      tok,
		OnProgress: cb.progress(stage),
	})
	if err != nil {
		result = stages.NewErrorResult(stage, result.Input, err.Error())
	}
	result = normalize(result, sc)

	recorded := o.whileActive(tok, func() {
		o.store.Batch(func() {
			o.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
				results := maps.Clone(st.StageResults)
				results[stage] = result
				status := maps.Clone(st.StageStatus)
				status[stage] = result.Status()
				st.StageResults = results
				st.StageStatus = status
			})
			o.store.SetState(workbench.SliceHistory, func(st *workbench.State) {
				st.IterationHistory = append(slices.Clip(st.IterationHistory), result)
			})
		})
	})

	elapsed := time.Since(begin)
	if !recorded {
		o.metrics.stageRun(stage, "cancelled", elapsed)
		o.logger.Info("stage result discarded", "stage", stage, "token", tok.ID())
		cb.error(stage, MessageCancelled)
		return stages.Result{}, false
	}

	o.metrics.stageRun(stage, string(result.Status()), elapsed)

	if result.Failed() {
		o.logger.Warn("stage failed", "stage", stage, "error", result.Error, "duration", elapsed)
		cb.error(stage, result.Error)
	} else {
		o.logger.Info("stage complete", "stage", stage, "duration", elapsed)
		cb.stageComplete(stage, result)
	}

	return result, true
}

// invoke calls the executor, converting a panic into an error result.
func (o *Orchestrator) invoke(tok *cancel.Token, sc StageContext, opts Options) (r stages.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("executor panic", "stage", sc.Stage, "panic", p)
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return o.executor.Execute(tok.Context(), sc, o.deps, opts)
}

func (o *Orchestrator) ensureSession(ctx context.Context) {
	if o.sessions == nil {
		return
	}
	if _, err := o.sessions.EnsureSession(ctx); err != nil {
		o.logger.Warn("running without a session", "error", err)
	}
}

func (o *Orchestrator) reject(reason, msg string, args ...any) {
	o.metrics.rejected(reason)
	o.logger.Warn(msg, append([]any{"reason", reason}, args...)...)
}

// settle returns status with every running stage put back to pending.
func settle(status map[stages.Stage]stages.Status) map[stages.Stage]stages.Status {
	next := maps.Clone(status)
	for stage, s := range next {
		if s == stages.Running {
			next[stage] = stages.Pending
		}
	}
	return next
}

// contextFor builds the stage context from a state snapshot.
func contextFor(st *workbench.State, stage stages.Stage, refinement bool) StageContext {
	previous := st.Results()
	if previous == nil {
		previous = make(map[stages.Stage]stages.Result)
	}

	return StageContext{
		Document:        st.Document,
		FieldSelection:  st.FieldsFor(stage),
		Stage:           stage,
		Config:          st.ConfigFor(stage),
		PreviousResults: previous,
		IterationCount:  st.IterationCount,
		Guidance:        st.Guidance,
		Refinement:      refinement,
	}
}

// normalize stamps the fields the orchestrator owns onto an executor result.
func normalize(r stages.Result, sc StageContext) stages.Result {
	r.Stage = sc.Stage
	r.Refinement = sc.Refinement
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return r
}
