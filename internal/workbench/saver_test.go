package workbench_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/internal/workbench"
	"github.com/JaimeStill/refine/pkg/lifecycle"
)

// slowSessions delays Update and records the peak number of concurrent calls.
type slowSessions struct {
	sessions.System
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
	updates atomic.Int32
}

func (s *slowSessions) Update(ctx context.Context, sess *sessions.Session) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.updates.Add(1)
	time.Sleep(s.delay)
	return s.System.Update(ctx, sess)
}

func TestSaverDebounce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	sum, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)

	saver := workbench.NewSaver(f.store, f.sys, 20*time.Millisecond, discard())
	saver.Watch()
	saver.Watch()

	for _, g := range []string{"a", "ab", "abc"} {
		f.mgr.SetGuidance(g)
	}
	f.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
		st.IterationCount = 4
	})
	f.q.Drain()
	assert.True(t, saver.Pending())

	assert.Eventually(t, func() bool {
		stored, err := f.sys.Find(ctx, sum.ID)
		return err == nil && stored.Guidance == "abc" && stored.IterationCount == 4
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return !saver.Pending() }, time.Second, 5*time.Millisecond)

	f.q.Drain()
	st := f.state(t)
	active, ok := st.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, 4, active.IterationCount, "summary refreshed after save")
}

func TestSaverIgnoresUnpersistedSlices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	_, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)
	f.q.Drain()

	saver := workbench.NewSaver(f.store, f.sys, time.Hour, discard())
	saver.Watch()

	f.mgr.ToggleExpanded(stages.Evaluate)
	f.q.Drain()

	assert.False(t, saver.Pending())
}

func TestSaverFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	saver := workbench.NewSaver(f.store, f.sys, time.Hour, discard())
	saver.Watch()

	t.Run("no active session", func(t *testing.T) {
		f.mgr.SetGuidance("unsaved")
		f.q.Drain()
		assert.NoError(t, saver.Flush(ctx))
		assert.False(t, saver.Pending())
	})

	t.Run("saves immediately", func(t *testing.T) {
		sum, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)

		result := stages.NewResult(stages.Evaluate, "in", "out")
		f.store.Batch(func() {
			f.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
				st.StageResults = map[stages.Stage]stages.Result{stages.Evaluate: result}
			})
			f.store.SetState(workbench.SliceHistory, func(st *workbench.State) {
				st.IterationHistory = []stages.Result{result}
			})
		})
		f.q.Drain()
		require.True(t, saver.Pending())

		require.NoError(t, saver.Flush(ctx))
		assert.False(t, saver.Pending())

		stored, err := f.sys.Find(ctx, sum.ID)
		require.NoError(t, err)
		assert.Equal(t, "unsaved", stored.Guidance)
		assert.Equal(t, result.ID, stored.StageResults[stages.Evaluate].ID)
		require.Len(t, stored.IterationHistory, 1)
	})
}

func TestSessionsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	saver := workbench.NewSaver(f.store, f.sys, time.Hour, discard())
	saver.Watch()

	order := func() []uuid.UUID {
		var ids []uuid.UUID
		for _, s := range f.state(t).Sessions {
			ids = append(ids, s.ID)
		}
		return ids
	}

	s1, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)
	require.NoError(t, f.mgr.NewSession(ctx))
	s2, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s2.ID, s1.ID}, order())

	require.NoError(t, f.mgr.SwitchSession(ctx, s1.ID))
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID}, order())

	require.NoError(t, f.mgr.RenameSession(ctx, s2.ID, "Draft B"))
	assert.Equal(t, []uuid.UUID{s2.ID, s1.ID}, order())

	f.mgr.SetGuidance("tighter")
	f.q.Drain()
	require.NoError(t, saver.Flush(ctx))
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID}, order())
	assert.Len(t, f.state(t).Sessions, 2)
}

func TestSaverSerializesSaves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slow := &slowSessions{System: f.sys, delay: 10 * time.Millisecond}

	f.selectDocument(t)
	_, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)

	saver := workbench.NewSaver(f.store, slow, time.Hour, discard())

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			assert.NoError(t, saver.Flush(ctx))
		})
	}
	wg.Wait()

	assert.Equal(t, int32(5), slow.updates.Load())
	assert.Equal(t, int32(1), slow.peak.Load())
}

func TestManagerFlushesBeforeSwitch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	saver := workbench.NewSaver(f.store, f.sys, time.Hour, discard())
	saver.Watch()
	mgr := workbench.NewManager(f.store, f.sys, discard(), workbench.WithFlusher(saver))

	require.NoError(t, mgr.SelectDocument(ctx, f.doc))
	first, err := mgr.EnsureSession(ctx)
	require.NoError(t, err)

	mgr.SetGuidance("first pass")
	f.q.Drain()
	require.True(t, saver.Pending())

	require.NoError(t, mgr.NewSession(ctx))

	stored, err := f.sys.Find(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first pass", stored.Guidance)
}

func TestSaverStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	sum, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)

	lc := lifecycle.New()
	saver := workbench.NewSaver(f.store, f.sys, time.Hour, discard())
	require.NoError(t, saver.Start(lc))

	f.mgr.SetGuidance("at shutdown")
	f.q.Drain()
	require.True(t, saver.Pending())

	require.NoError(t, lc.Shutdown(5*time.Second))

	stored, err := f.sys.Find(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, "at shutdown", stored.Guidance)
	assert.False(t, saver.Pending())
}
