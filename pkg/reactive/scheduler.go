package reactive

import (
	"context"
	"log/slog"
	"sync"

	"github.com/JaimeStill/refine/pkg/lifecycle"
)

// Scheduler defers a task until the current run of synchronous work is done.
type Scheduler interface {
	Schedule(task func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(task func())

// Schedule calls f(task).
func (f SchedulerFunc) Schedule(task func()) {
	f(task)
}

// Queue holds scheduled tasks until Drain runs them on the calling goroutine.
// It gives tests an explicit "next tick".
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule appends task to the queue.
func (q *Queue) Schedule(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs pending tasks in order, including tasks scheduled while draining,
// and returns how many ran.
func (q *Queue) Drain() int {
	ran := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return ran
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
		ran++
	}
}

// Loop runs scheduled tasks one at a time on a single goroutine.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// NewLoop creates a Loop. Tasks are queued until Run or Start is called.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("system", "loop"),
	}
}

// Schedule queues task for execution on the loop goroutine.
func (l *Loop) Schedule(task func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes tasks until ctx is cancelled, then runs whatever is still queued.
// Run must be called at most once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		l.runPending()

		select {
		case <-ctx.Done():
			l.runPending()
			return
		case <-l.wake:
		}
	}
}

// Start runs the loop on its own goroutine, bound to the coordinator's context,
// and registers a shutdown hook that waits for the loop to exit.
func (l *Loop) Start(lc *lifecycle.Coordinator) error {
	go l.Run(lc.Context())

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-l.done
		l.logger.Info("loop stopped")
	})

	return nil
}

// Sync blocks until every task queued before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	l.Schedule(func() { close(reached) })

	select {
	case <-reached:
		return nil
	case <-l.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) runPending() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.run(task)
	}
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task failed", "panic", r)
		}
	}()
	task()
}
