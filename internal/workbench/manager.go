package workbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JaimeStill/refine/internal/documents"
	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/stages"
)

// Flusher forces pending session changes to storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithArchiver archives sessions to blob storage before they are deleted.
func WithArchiver(a *sessions.Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithFlusher flushes pending saves before the active session changes.
func WithFlusher(f Flusher) Option {
	return func(m *Manager) { m.flusher = f }
}

// Manager owns the session side of application state: which document is
// selected, which of its sessions is active, and the session-scoped settings.
type Manager struct {
	store    *Store
	sessions sessions.System
	archiver *sessions.Archiver
	flusher  Flusher
	group    singleflight.Group
	logger   *slog.Logger
}

// NewManager creates a Manager over store and the session System.
func NewManager(store *Store, sys sessions.System, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		sessions: sys,
		logger:   logger.With("system", "sessions"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the managed store.
func (m *Manager) Store() *Store {
	return m.store
}

// EnsureSession returns the active session, creating one when none is active.
// The new session snapshots the selected document fields, is prepended to
// Sessions, and becomes active in one batch. Returns nil without error when no
// document is selected. Concurrent calls for one document share one creation.
func (m *Manager) EnsureSession(ctx context.Context) (*sessions.Summary, error) {
	st, err := m.store.GetState()
	if err != nil {
		return nil, err
	}

	if sum, ok := st.ActiveSession(); ok {
		return &sum, nil
	}

	if st.Document == nil {
		return nil, nil
	}

	doc := st.Document
	v, err, shared := m.group.Do(doc.ID, func() (any, error) {
		return m.createSession(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	sum := v.(sessions.Summary)
	if shared {
		m.logger.Debug("session creation shared", "id", sum.ID)
	}
	return &sum, nil
}

func (m *Manager) createSession(ctx context.Context, doc *documents.Document) (sessions.Summary, error) {
	st, err := m.store.GetState()
	if err != nil {
		return sessions.Summary{}, err
	}

	if sum, ok := st.ActiveSession(); ok {
		return sum, nil
	}

	sess, err := m.sessions.Create(ctx, sessions.CreateCommand{
		DocumentID:       doc.ID,
		DocumentLabel:    doc.Label,
		FieldSelection:   slices.Clone(st.FieldSelection),
		OriginalSnapshot: doc.Snapshot(st.FieldSelection),
		Configs:          maps.Clone(st.StageConfigs),
	})
	if err != nil {
		m.logger.Warn("session create failed", "document", doc.ID, "error", err)
		return sessions.Summary{}, fmt.Errorf("create session: %w", err)
	}

	sum := sess.Summary()
	m.store.Batch(func() {
		m.store.SetState(SliceSessions, func(st *State) {
			if st.Document == nil || st.Document.ID != sum.DocumentID {
				return
			}
			st.promote(sum, true)
			st.ActiveSessionID = sum.ID
		})
	})

	m.logger.Info("session created", "id", sum.ID, "document", sum.DocumentID)
	return sum, nil
}

// SelectDocument makes doc the pipeline subject. Any active session is
// flushed and detached, the field selection defaults to every field, and
// the document's sessions are loaded.
func (m *Manager) SelectDocument(ctx context.Context, doc *documents.Document) error {
	if err := m.idle(); err != nil {
		return err
	}
	m.flush(ctx)

	m.store.Batch(func() {
		m.store.SetState(SliceDocument, func(st *State) {
			st.Document = doc
		})
		m.store.SetState(SliceSessions, func(st *State) {
			st.Sessions = nil
			st.detach()
		})
		m.store.SetState(SliceConfig, func(st *State) {
			st.FieldSelection = doc.Keys()
			st.StageFields = make(map[stages.Stage][]string)
			st.StageConfigs = stages.DefaultConfigs()
			st.Guidance = ""
		})
		m.store.Touch(SlicePipeline, SliceHistory)
	})

	m.logger.Info("document selected", "document", doc.ID, "fields", len(doc.Fields))
	return m.LoadSessions(ctx)
}

// LoadSessions refreshes Sessions from storage. An active session that no
// longer exists is detached.
func (m *Manager) LoadSessions(ctx context.Context) error {
	doc, err := m.document()
	if err != nil {
		return err
	}

	list, err := m.sessions.ListForDocument(ctx, doc.ID)
	if err != nil {
		m.logger.Warn("list sessions failed", "document", doc.ID, "error", err)
		return fmt.Errorf("list sessions: %w", err)
	}
	summaries := sessions.Summaries(list)

	m.store.Batch(func() {
		m.store.SetState(SliceSessions, func(st *State) {
			if st.Document == nil || st.Document.ID != doc.ID {
				return
			}
			st.Sessions = summaries
			if _, ok := st.ActiveSession(); !ok && st.ActiveSessionID != uuid.Nil {
				st.detach()
			}
		})
	})

	return nil
}

// SwitchSession activates the session with id and hydrates state from it.
func (m *Manager) SwitchSession(ctx context.Context, id uuid.UUID) error {
	if err := m.idle(); err != nil {
		return err
	}
	doc, err := m.document()
	if err != nil {
		return err
	}

	m.flush(ctx)

	sess, err := m.sessions.Find(ctx, id)
	if err != nil {
		m.logger.Warn("load session failed", "id", id, "error", err)
		return err
	}
	if sess.DocumentID != doc.ID {
		return ErrWrongDocument
	}

	sum := sess.Summary()
	m.store.Batch(func() {
		m.store.SetState(SliceSessions, func(st *State) {
			st.promote(sum, true)
			st.hydrate(sess)
		})
		m.store.Touch(SliceConfig, SlicePipeline, SliceHistory)
	})

	m.logger.Info("session switched", "id", id, "history", len(sess.IterationHistory))
	return nil
}

// NewSession detaches the active session. The next action that needs
// persistence creates a fresh one.
func (m *Manager) NewSession(ctx context.Context) error {
	if err := m.idle(); err != nil {
		return err
	}
	if _, err := m.document(); err != nil {
		return err
	}

	m.flush(ctx)

	m.store.Batch(func() {
		m.store.SetState(SliceSessions, func(st *State) { st.detach() })
		m.store.Touch(SlicePipeline, SliceHistory)
	})
	return nil
}

// RenameSession sets the display name of a session. An empty name clears it.
func (m *Manager) RenameSession(ctx context.Context, id uuid.UUID, name string) error {
	sess, err := m.sessions.Find(ctx, id)
	if err != nil {
		return err
	}

	if name == "" {
		sess.Name = nil
	} else {
		sess.Name = &name
	}

	if err := m.sessions.Update(ctx, sess); err != nil {
		m.logger.Warn("rename session failed", "id", id, "error", err)
		return err
	}

	m.replaceSummary(sess.Summary())
	return nil
}

// DeleteSession removes a session, archiving it first when an archiver is
// configured. Deleting the active session detaches it. Returns false when
// the session is generating, cannot be archived, or cannot be deleted.
func (m *Manager) DeleteSession(ctx context.Context, id uuid.UUID) bool {
	st, err := m.store.GetState()
	if err != nil {
		return false
	}
	if st.IsGenerating && st.ActiveSessionID == id {
		m.logger.Warn("refusing to delete generating session", "id", id)
		return false
	}

	if err := m.archive(ctx, id); err != nil {
		m.logger.Warn("archive before delete failed", "id", id, "error", err)
		return false
	}

	if err := m.sessions.Delete(ctx, id); err != nil {
		m.logger.Warn("delete session failed", "id", id, "error", err)
		return false
	}

	m.store.Batch(func() {
		m.store.SetState(SliceSessions, func(st *State) {
			st.Sessions = slices.DeleteFunc(slices.Clone(st.Sessions), func(x sessions.Summary) bool {
				return x.ID == id
			})
			if st.ActiveSessionID == id {
				st.detach()
			}
		})
		m.store.Touch(SlicePipeline, SliceHistory)
	})

	m.logger.Info("session deleted", "id", id)
	return true
}

// DeleteAllSessions removes every session of the selected document and
// returns how many were removed.
func (m *Manager) DeleteAllSessions(ctx context.Context) (int, error) {
	if err := m.idle(); err != nil {
		return 0, err
	}
	doc, err := m.document()
	if err != nil {
		return 0, err
	}

	if m.archiver != nil {
		list, err := m.sessions.ListForDocument(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("list sessions: %w", err)
		}
		for i := range list {
			if _, err := m.archiver.Archive(ctx, &list[i]); err != nil {
				return 0, fmt.Errorf("%w: %w", ErrArchiveFailed, err)
			}
		}
	}

	n, err := m.sessions.DeleteAllForDocument(ctx, doc.ID)
	if err != nil {
		m.logger.Warn("delete all sessions failed", "document", doc.ID, "error", err)
		return 0, err
	}

	m.store.Batch(func() {
		m.store.SetState(SliceSessions, func(st *State) {
			st.Sessions = nil
			st.detach()
		})
		m.store.Touch(SlicePipeline, SliceHistory)
	})

	m.logger.Info("document sessions deleted", "document", doc.ID, "count", n)
	return n, nil
}

// SetGuidance sets the free-form guidance passed to every stage.
func (m *Manager) SetGuidance(guidance string) {
	m.store.SetState(SliceConfig, func(st *State) {
		st.Guidance = guidance
	})
}

// SetFieldSelection sets the session-scoped field selection.
func (m *Manager) SetFieldSelection(fields []string) error {
	if err := m.checkFields(fields); err != nil {
		return err
	}
	m.store.SetState(SliceConfig, func(st *State) {
		st.FieldSelection = slices.Clone(fields)
	})
	return nil
}

// SetStageFields overrides the field selection for one stage.
// An empty list removes the override.
func (m *Manager) SetStageFields(stage stages.Stage, fields []string) error {
	if !stage.Valid() {
		return stages.ErrInvalidStage
	}
	if err := m.checkFields(fields); err != nil {
		return err
	}

	m.store.SetState(SliceConfig, func(st *State) {
		next := maps.Clone(st.StageFields)
		if next == nil {
			next = make(map[stages.Stage][]string)
		}
		if len(fields) == 0 {
			delete(next, stage)
		} else {
			next[stage] = slices.Clone(fields)
		}
		st.StageFields = next
	})
	return nil
}

// SetStageConfig replaces one stage's config.
func (m *Manager) SetStageConfig(stage stages.Stage, cfg stages.Config) error {
	if !stage.Valid() {
		return stages.ErrInvalidStage
	}
	m.store.SetState(SliceConfig, func(st *State) {
		next := maps.Clone(st.StageConfigs)
		if next == nil {
			next = make(map[stages.Stage]stages.Config)
		}
		next[stage] = cfg
		st.StageConfigs = next
	})
	return nil
}

// ToggleExpanded flips the display flag for a stage.
func (m *Manager) ToggleExpanded(stage stages.Stage) {
	m.store.SetState(SliceUI, func(st *State) {
		next := maps.Clone(st.Expanded)
		if next == nil {
			next = make(map[stages.Stage]bool)
		}
		next[stage] = !next[stage]
		st.Expanded = next
	})
}

func (m *Manager) idle() error {
	st, err := m.store.GetState()
	if err != nil {
		return err
	}
	if st.IsGenerating {
		m.logger.Warn("operation refused while generating")
		return ErrGenerating
	}
	return nil
}

func (m *Manager) document() (*documents.Document, error) {
	st, err := m.store.GetState()
	if err != nil {
		return nil, err
	}
	if st.Document == nil {
		return nil, ErrNoDocument
	}
	return st.Document, nil
}

func (m *Manager) checkFields(fields []string) error {
	doc, err := m.document()
	if err != nil {
		return err
	}
	for _, f := range fields {
		if _, ok := doc.Field(f); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, f)
		}
	}
	return nil
}

func (m *Manager) flush(ctx context.Context) {
	if m.flusher == nil {
		return
	}
	if err := m.flusher.Flush(ctx); err != nil {
		m.logger.Warn("flush before session change failed", "error", err)
	}
}

func (m *Manager) archive(ctx context.Context, id uuid.UUID) error {
	if m.archiver == nil {
		return nil
	}

	sess, err := m.sessions.Find(ctx, id)
	if err != nil {
		return err
	}

	if _, err := m.archiver.Archive(ctx, sess); err != nil {
		return errors.Join(ErrArchiveFailed, err)
	}
	return nil
}

func (m *Manager) replaceSummary(sum sessions.Summary) {
	m.store.SetState(SliceSessions, func(st *State) {
		st.promote(sum, false)
	})
}
