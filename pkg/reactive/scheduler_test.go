package reactive_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/pkg/lifecycle"
	"github.com/JaimeStill/refine/pkg/reactive"
)

func TestQueueDrain(t *testing.T) {
	q := reactive.NewQueue()

	var order []int
	q.Schedule(func() {
		order = append(order, 1)
		q.Schedule(func() { order = append(order, 3) })
	})
	q.Schedule(func() { order = append(order, 2) })

	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Zero(t, q.Drain())
}

func TestSchedulerFunc(t *testing.T) {
	var ran bool
	sched := reactive.SchedulerFunc(func(task func()) { task() })
	sched.Schedule(func() { ran = true })
	assert.True(t, ran)
}

func TestLoop(t *testing.T) {
	lc := lifecycle.New()
	loop := reactive.NewLoop(slog.New(slog.DiscardHandler))
	require.NoError(t, loop.Start(lc))

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 10 {
		loop.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	loop.Schedule(func() { panic("task") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	mu.Unlock()

	require.NoError(t, lc.Shutdown(5*time.Second))
}

func TestStoreOnLoop(t *testing.T) {
	lc := lifecycle.New()
	loop := reactive.NewLoop(slog.New(slog.DiscardHandler))
	require.NoError(t, loop.Start(lc))
	defer lc.Shutdown(5 * time.Second)

	s := reactive.New(func() counterState { return counterState{} }, loop, slog.New(slog.DiscardHandler))
	s.Init()

	notified := make(chan int, 4)
	s.Subscribe([]reactive.Slice{sliceA}, func() {
		st, _ := s.GetState()
		notified <- st.A
	})

	s.Batch(func() {
		for range 3 {
			s.SetState(sliceA, func(st *counterState) { st.A++ })
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))

	require.Len(t, notified, 1)
	assert.Equal(t, 3, <-notified)
}
