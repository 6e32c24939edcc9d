// Package workbench holds the application state of one refinement workbench
// and the components that keep it consistent with persisted sessions: the
// session manager and the debounced autosaver.
package workbench

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/internal/documents"
	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/pkg/cancel"
	"github.com/JaimeStill/refine/pkg/reactive"
)

// State slices. Every mutation names the slice whose fields it changes.
const (
	// SliceDocument covers Document.
	SliceDocument reactive.Slice = "document"
	// SliceSessions covers Sessions and ActiveSessionID.
	SliceSessions reactive.Slice = "sessions"
	// SliceConfig covers StageConfigs, FieldSelection, StageFields, and Guidance.
	SliceConfig reactive.Slice = "config"
	// SlicePipeline covers StageStatus, StageResults, IterationCount,
	// IsGenerating, and ActiveToken.
	SlicePipeline reactive.Slice = "pipeline"
	// SliceHistory covers IterationHistory.
	SliceHistory reactive.Slice = "history"
	// SliceUI covers Expanded.
	SliceUI reactive.Slice = "ui"
)

// PersistedSlices are the slices whose fields are written to the active session.
var PersistedSlices = []reactive.Slice{SliceConfig, SlicePipeline, SliceHistory}

// State is the single application snapshot. Maps and slices are replaced,
// never mutated in place, so snapshots handed to readers stay stable.
type State struct {
	Document         *documents.Document
	Sessions         []sessions.Summary
	ActiveSessionID  uuid.UUID
	StageConfigs     map[stages.Stage]stages.Config
	StageStatus      map[stages.Stage]stages.Status
	StageResults     map[stages.Stage]stages.Result
	IterationHistory []stages.Result
	IterationCount   int
	IsGenerating     bool
	ActiveToken      *cancel.Token
	FieldSelection   []string
	StageFields      map[stages.Stage][]string
	Guidance         string
	Expanded         map[stages.Stage]bool
}

// Store is the reactive container for State.
type Store = reactive.Store[State]

// DefaultState returns the state a workbench opens with.
func DefaultState() State {
	return State{
		StageConfigs:     stages.DefaultConfigs(),
		StageStatus:      stages.PendingStatus(),
		StageResults:     make(map[stages.Stage]stages.Result),
		IterationHistory: []stages.Result{},
		StageFields:      make(map[stages.Stage][]string),
		Expanded:         make(map[stages.Stage]bool),
	}
}

// NewStore creates and initializes a store for State.
func NewStore(sched reactive.Scheduler, logger *slog.Logger) *Store {
	s := reactive.New(DefaultState, sched, logger)
	s.Init()
	return s
}

// ActiveSession returns the summary ActiveSessionID refers to.
func (s State) ActiveSession() (sessions.Summary, bool) {
	if s.ActiveSessionID == uuid.Nil {
		return sessions.Summary{}, false
	}
	i := slices.IndexFunc(s.Sessions, func(x sessions.Summary) bool {
		return x.ID == s.ActiveSessionID
	})
	if i < 0 {
		return sessions.Summary{}, false
	}
	return s.Sessions[i], true
}

// FieldsFor returns the field selection a stage runs with: its per-stage
// override when one is set, otherwise the session selection.
func (s State) FieldsFor(stage stages.Stage) []string {
	if fields, ok := s.StageFields[stage]; ok && len(fields) > 0 {
		return slices.Clone(fields)
	}
	return slices.Clone(s.FieldSelection)
}

// ConfigFor returns the stage config, falling back to the built-in default.
func (s State) ConfigFor(stage stages.Stage) stages.Config {
	if cfg, ok := s.StageConfigs[stage]; ok {
		return cfg
	}
	return stages.DefaultConfigs()[stage]
}

// Results returns a copy of StageResults.
func (s State) Results() map[stages.Stage]stages.Result {
	return maps.Clone(s.StageResults)
}

// promote moves sum to the front of Sessions, keeping the list
// most-recently-updated first. A summary not already listed is only added
// when insert is set.
func (s *State) promote(sum sessions.Summary, insert bool) {
	list := slices.DeleteFunc(slices.Clone(s.Sessions), func(x sessions.Summary) bool {
		return x.ID == sum.ID
	})
	if len(list) == len(s.Sessions) && !insert {
		return
	}
	s.Sessions = append([]sessions.Summary{sum}, list...)
}

// ResetPipeline returns every stage to pending and clears results and the
// iteration counter. History is left alone.
func (s *State) ResetPipeline() {
	s.StageStatus = stages.PendingStatus()
	s.StageResults = make(map[stages.Stage]stages.Result)
	s.IterationCount = 0
}

// detach clears the active session along with everything hydrated from it.
func (s *State) detach() {
	s.ActiveSessionID = uuid.Nil
	s.ResetPipeline()
	s.IterationHistory = []stages.Result{}
}

// hydrate replaces session-scoped fields with those of sess.
func (s *State) hydrate(sess *sessions.Session) {
	configs := stages.DefaultConfigs()
	maps.Copy(configs, sess.Configs)

	status := stages.PendingStatus()
	results := make(map[stages.Stage]stages.Result, len(sess.StageResults))
	for stage, r := range sess.StageResults {
		results[stage] = r
		status[stage] = r.Status()
	}

	s.ActiveSessionID = sess.ID
	s.StageConfigs = configs
	s.StageStatus = status
	s.StageResults = results
	s.IterationHistory = slices.Clone(sess.IterationHistory)
	if s.IterationHistory == nil {
		s.IterationHistory = []stages.Result{}
	}
	s.IterationCount = sess.IterationCount
	s.Guidance = sess.Guidance
	if len(sess.FieldSelection) > 0 {
		s.FieldSelection = slices.Clone(sess.FieldSelection)
	}
}
