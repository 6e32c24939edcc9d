// Package reactive provides a single-snapshot state container with slice-tagged
// mutations and batched, fine-grained change notification.
//
// Every mutation names the Slice it touches. Listeners subscribe to a set of
// slices and are invoked at most once per flush, and only when one of their
// slices was dirtied since the previous flush. Flushes are handed to a
// Scheduler, so a run of SetState calls that completes before the scheduler
// gets to the flush collapses into a single notification per listener.
package reactive

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// Slice names a partition of the state used purely for subscription targeting.
type Slice string

type listener struct {
	id      uint64
	slices  []Slice
	fn      func()
	removed atomic.Bool
}

func (l *listener) intersects(dirty map[Slice]struct{}) bool {
	return slices.ContainsFunc(l.slices, func(s Slice) bool {
		_, ok := dirty[s]
		return ok
	})
}

// Store owns exactly one live snapshot of S. The snapshot is only replaced
// through SetState; readers receive shallow copies.
//
// Updaters run while the store lock is held and must not call back into the
// store. Maps and slices reachable from S are treated as copy-on-write: an
// updater replaces them rather than mutating the instance readers may hold.
type Store[S any] struct {
	mu        sync.Mutex
	defaults  func() S
	state     *S
	dirty     map[Slice]struct{}
	depth     int
	scheduled bool
	nextID    uint64
	listeners []*listener
	sched     Scheduler
	logger    *slog.Logger
}

// New creates an uninitialized store. Call Init before mutating it.
func New[S any](defaults func() S, sched Scheduler, logger *slog.Logger) *Store[S] {
	return &Store[S]{
		defaults: defaults,
		dirty:    make(map[Slice]struct{}),
		sched:    sched,
		logger:   logger.With("system", "store"),
	}
}

// Init installs a fresh default snapshot and clears any pending dirty slices.
func (s *Store[S]) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.defaults()
	s.state = &st
	s.dirty = make(map[Slice]struct{})
}

// Initialized reports whether a snapshot is installed.
func (s *Store[S]) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil
}

// GetState returns a copy of the current snapshot.
// Returns ErrNotInitialized before Init or after Reset.
func (s *Store[S]) GetState() (S, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		var zero S
		return zero, ErrNotInitialized
	}
	return *s.state, nil
}

// Snapshot returns a copy of the current snapshot and false when uninitialized.
func (s *Store[S]) Snapshot() (S, bool) {
	st, err := s.GetState()
	return st, err == nil
}

// SetState applies update to a shallow copy of the current snapshot, installs
// the copy, and marks slice dirty. Outside of a batch the first dirtying call
// schedules a flush; later calls before that flush runs only add to the dirty set.
// Calls made before Init are dropped with a warning.
func (s *Store[S]) SetState(slice Slice, update func(*S)) {
	schedule, ok := s.apply(slice, update)
	if !ok {
		s.logger.Warn("state update before init", "slice", slice)
		return
	}
	if schedule {
		s.sched.Schedule(s.flush)
	}
}

func (s *Store[S]) apply(slice Slice, update func(*S)) (schedule bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return false, false
	}

	next := *s.state
	update(&next)
	s.state = &next

	return s.markLocked(slice), true
}

// markLocked adds keys to the dirty set and reports whether the caller must
// schedule a flush. s.mu must be held.
func (s *Store[S]) markLocked(keys ...Slice) bool {
	for _, k := range keys {
		s.dirty[k] = struct{}{}
	}

	if s.depth == 0 && !s.scheduled {
		s.scheduled = true
		return true
	}
	return false
}

// Touch marks keys dirty without changing the snapshot. It is used when one
// updater changed fields that belong to several slices.
func (s *Store[S]) Touch(keys ...Slice) {
	if len(keys) == 0 {
		return
	}

	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		s.logger.Warn("state touch before init", "slices", keys)
		return
	}
	schedule := s.markLocked(keys...)
	s.mu.Unlock()

	if schedule {
		s.sched.Schedule(s.flush)
	}
}

// Batch runs fn synchronously with flushing suspended. Updates made inside fn
// apply immediately and are visible to GetState. When the outermost batch
// exits, one flush is scheduled for every slice dirtied during it. A panic in
// fn still schedules the flush before propagating.
func (s *Store[S]) Batch(fn func()) {
	s.mu.Lock()
	s.depth++
	s.mu.Unlock()

	defer s.endBatch()
	fn()
}

func (s *Store[S]) endBatch() {
	s.mu.Lock()
	s.depth--
	schedule := s.depth == 0 &&
		!s.scheduled &&
		s.state != nil &&
		len(s.dirty) > 0
	if schedule {
		s.scheduled = true
	}
	s.mu.Unlock()

	if schedule {
		s.sched.Schedule(s.flush)
	}
}

// Subscribe registers fn for notification whenever one of keys is dirtied.
// The returned function removes the subscription and is safe to call repeatedly.
func (s *Store[S]) Subscribe(keys []Slice, fn func()) (unsubscribe func()) {
	l := &listener{
		slices: slices.Clone(keys),
		fn:     fn,
	}

	s.mu.Lock()
	s.nextID++
	l.id = s.nextID
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.removed.Store(true)

			s.mu.Lock()
			s.listeners = slices.DeleteFunc(s.listeners, func(x *listener) bool {
				return x == l
			})
			s.mu.Unlock()
		})
	}
}

// Reset synchronously notifies every listener while the snapshot is still
// readable, then discards the snapshot.
func (s *Store[S]) Reset() {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return
	}
	targets := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range targets {
		s.notify(l)
	}

	s.mu.Lock()
	s.state = nil
	s.dirty = make(map[Slice]struct{})
	s.mu.Unlock()

	s.logger.Debug("store reset", "listeners", len(targets))
}

func (s *Store[S]) flush() {
	s.mu.Lock()
	s.scheduled = false

	if s.state == nil {
		s.dirty = make(map[Slice]struct{})
		s.mu.Unlock()
		return
	}

	// an open batch reschedules on exit
	if s.depth > 0 || len(s.dirty) == 0 {
		s.mu.Unlock()
		return
	}

	dirty := s.dirty
	s.dirty = make(map[Slice]struct{})

	targets := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.intersects(dirty) {
			targets = append(targets, l)
		}
	}
	s.mu.Unlock()

	for _, l := range targets {
		if l.removed.Load() {
			continue
		}
		s.notify(l)
	}
}

func (s *Store[S]) notify(l *listener) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(
				"listener failed",
				"listener", l.id,
				"slices", l.slices,
				"panic", r,
			)
		}
	}()
	l.fn()
}
