package workbench

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/pkg/lifecycle"
)

// Saver writes the active session's state back to the session store.
// Changes to persisted slices arm a debounce timer; Flush saves at once.
// A weight-one semaphore serializes every save, so a Flush issued while a
// debounced save is in flight waits for it and then saves again.
type Saver struct {
	store    *Store
	sessions sessions.System
	delay    time.Duration
	sem      *semaphore.Weighted
	logger   *slog.Logger

	mu          sync.Mutex
	timer       *time.Timer
	unsubscribe func()
}

// NewSaver creates a Saver that waits delay after the last change before saving.
func NewSaver(store *Store, sys sessions.System, delay time.Duration, logger *slog.Logger) *Saver {
	return &Saver{
		store:    store,
		sessions: sys,
		delay:    delay,
		sem:      semaphore.NewWeighted(1),
		logger:   logger.With("system", "autosave"),
	}
}

// Watch subscribes the saver to persisted slices. Calling Watch twice is a no-op.
func (s *Saver) Watch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.store.Subscribe(PersistedSlices, s.arm)
}

// Start watches the store and flushes pending changes on shutdown.
func (s *Saver) Start(lc *lifecycle.Coordinator) error {
	s.Watch()

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.Close(ctx); err != nil {
			s.logger.Error("final save failed", "error", err)
			return
		}
		s.logger.Info("autosave stopped")
	})

	return nil
}

// Flush cancels any pending debounce and saves immediately.
func (s *Saver) Flush(ctx context.Context) error {
	s.disarm()
	return s.save(ctx)
}

// Close stops watching and performs a final flush.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Pending reports whether a debounced save is armed.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Saver) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.timer != t {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()

		if err := s.save(context.Background()); err != nil {
			s.logger.Warn("debounced save failed", "error", err)
		}
	})
	s.timer = t
}

func (s *Saver) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Saver) save(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	st, ok := s.store.Snapshot()
	if !ok || st.ActiveSessionID == uuid.Nil {
		return nil
	}

	sess, err := s.sessions.Find(ctx, st.ActiveSessionID)
	if err != nil {
		s.logger.Warn("load session for save failed", "id", st.ActiveSessionID, "error", err)
		return err
	}

	sess.FieldSelection = slices.Clone(st.FieldSelection)
	sess.Configs = maps.Clone(st.StageConfigs)
	sess.StageResults = maps.Clone(st.StageResults)
	sess.IterationHistory = slices.Clone(st.IterationHistory)
	sess.IterationCount = st.IterationCount
	sess.Guidance = st.Guidance

	if err := s.sessions.Update(ctx, sess); err != nil {
		s.logger.Warn("session save failed", "id", sess.ID, "error", err)
		return err
	}

	summary := sess.Summary()
	s.store.SetState(SliceSessions, func(st *State) {
		st.promote(summary, false)
	})

	s.logger.Debug(
		"session saved",
		"id", sess.ID,
		"history", len(sess.IterationHistory),
		"iterations", sess.IterationCount,
	)
	return nil
}
