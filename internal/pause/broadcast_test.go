package pause

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBroadcasterDeliversToHandlers(t *testing.T) {
	_, rdb := newTestWrapper(t)
	b := NewBroadcaster(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	var pauses, resumes atomic.Int64
	var lastPause atomic.Value
	b.Receive(KindPause, func(name string) error {
		lastPause.Store(name)
		pauses.Add(1)
		return nil
	})
	b.Receive(KindResume, func(name string) error {
		resumes.Add(1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))

	require.NoError(t, b.Transmit(ctx, KindPause, "default"))
	require.NoError(t, b.Transmit(ctx, KindResume, "critical"))

	assert.Eventually(t, func() bool {
		return pauses.Load() == 1 && resumes.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "default", lastPause.Load())
}

func TestBroadcasterReadyFiresOnceAfterSubscribe(t *testing.T) {
	_, rdb := newTestWrapper(t)
	b := NewBroadcaster(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	var fired atomic.Int64
	b.Ready(func() { fired.Add(1) })

	require.Equal(t, int64(0), fired.Load(), "ready must not fire before Start")

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	require.Equal(t, int64(1), fired.Load())

	// Second Start is a no-op and must not re-fire
	require.NoError(t, b.Start(ctx))
	require.Equal(t, int64(1), fired.Load())

	// Late registration fires immediately
	var late atomic.Int64
	b.Ready(func() { late.Add(1) })
	require.Equal(t, int64(1), late.Load())
}

func TestBroadcasterHandlerPanicDoesNotKillDispatch(t *testing.T) {
	_, rdb := newTestWrapper(t)
	b := NewBroadcaster(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	var applied atomic.Int64
	b.Receive(KindPause, func(name string) error {
		if name == "bad" {
			panic("boom")
		}
		applied.Add(1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))

	require.NoError(t, b.Transmit(ctx, KindPause, "bad"))
	require.NoError(t, b.Transmit(ctx, KindPause, "good"))

	// The message after the panic still gets through
	assert.Eventually(t, func() bool {
		return applied.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcasterHandlerErrorIsSwallowed(t *testing.T) {
	_, rdb := newTestWrapper(t)
	b := NewBroadcaster(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	var calls atomic.Int64
	b.Receive(KindResume, func(name string) error {
		calls.Add(1)
		return assert.AnError
	})

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))

	require.NoError(t, b.Transmit(ctx, KindResume, "default"))
	require.NoError(t, b.Transmit(ctx, KindResume, "default"))

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcasterStartFailsWhenRedisDown(t *testing.T) {
	srv, rdb := newTestWrapper(t)
	b := NewBroadcaster(rdb, zaptest.NewLogger(t))

	srv.Close()

	err := b.Start(context.Background())
	require.Error(t, err)
}
