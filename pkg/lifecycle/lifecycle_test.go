package lifecycle_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/pkg/lifecycle"
)

func TestCoordinator(t *testing.T) {
	t.Run("startup marks ready", func(t *testing.T) {
		lc := lifecycle.New()
		var started atomic.Int32
		lc.OnStartup(func() { started.Add(1) })
		lc.OnStartup(func() { started.Add(1) })

		assert.False(t, lc.Ready())
		lc.WaitForStartup()

		assert.True(t, lc.Ready())
		assert.Equal(t, int32(2), started.Load())
	})

	t.Run("shutdown waits for hooks", func(t *testing.T) {
		lc := lifecycle.New()
		var closed atomic.Bool
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			closed.Store(true)
		})

		require.NoError(t, lc.Shutdown(time.Second))
		assert.True(t, closed.Load())
		assert.False(t, lc.Ready())
	})

	t.Run("shutdown times out", func(t *testing.T) {
		lc := lifecycle.New()
		release := make(chan struct{})
		defer close(release)
		lc.OnShutdown(func() { <-release })

		assert.Error(t, lc.Shutdown(10*time.Millisecond))
	})

	t.Run("parent cancellation propagates", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		lc := lifecycle.NewWithContext(parent)

		cancel()

		select {
		case <-lc.Context().Done():
		case <-time.After(time.Second):
			t.Fatal("coordinator context not cancelled")
		}
	})
}
