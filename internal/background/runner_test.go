package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_ShutdownWaitsForTasks(t *testing.T) {
	r := NewRunner()
	var done atomic.Bool

	ok := r.Go("slow", 0, func(ctx context.Context) {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	})
	require.True(t, ok)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, done.Load(), "shutdown returned before task completed")
}

func TestRunner_RejectsTasksAfterShutdown(t *testing.T) {
	r := NewRunner()
	require.NoError(t, r.Shutdown(context.Background()))

	ok := r.Go("late", 0, func(ctx context.Context) {})
	assert.False(t, ok)
}

func TestRunner_ShutdownTimeout(t *testing.T) {
	r := NewRunner()
	release := make(chan struct{})
	r.Go("stuck", 0, func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
}

func TestRunner_RecoversPanic(t *testing.T) {
	r := NewRunner()
	r.Go("panicky", 0, func(ctx context.Context) { panic("boom") })
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestRunner_TaskContextTimeout(t *testing.T) {
	r := NewRunner()
	var deadlineSet atomic.Bool

	r.Go("bounded", time.Second, func(ctx context.Context) {
		_, ok := ctx.Deadline()
		deadlineSet.Store(ok)
	})

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, deadlineSet.Load())
}
