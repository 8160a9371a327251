package pause

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
	"github.com/fleetq/fleetq/internal/queuename"
)

// newTestCoordinator builds a coordinator against the shared miniredis, so
// several of them act like independent worker processes.
func newTestCoordinator(t *testing.T, srv *miniredis.Miniredis, prefix string, interval time.Duration) *Coordinator {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	rdb := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = rdb.Close() })

	bcast := NewBroadcaster(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = bcast.Close() })

	return NewCoordinator(Options{
		Store:          NewStore(rdb),
		Broadcaster:    bcast,
		Codec:          queuename.NewCodec(prefix),
		Logger:         zaptest.NewLogger(t),
		Enabled:        true,
		ResyncInterval: interval,
	})
}

// newTestStore is a second handle on the shared set, used to mutate pause
// state without publishing a broadcast ("dropped message" scenarios).
func newTestStore(t *testing.T, srv *miniredis.Miniredis) *Store {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	rdb := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb)
}

func startCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
}

func TestPausePropagatesToFilter(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "", time.Minute)
	startCoordinator(t, c)
	ctx := context.Background()

	require.NoError(t, c.Pause(ctx, "default"))
	assert.Eventually(t, func() bool {
		return len(c.Filter([]string{"default"})) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Resume(ctx, "default"))
	assert.Eventually(t, func() bool {
		got := c.Filter([]string{"default"})
		return len(got) == 1 && got[0] == "default"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPausePropagatesAcrossProcesses(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	operator := newTestCoordinator(t, srv, "", time.Minute)
	watcher := newTestCoordinator(t, srv, "", time.Minute)
	startCoordinator(t, operator)
	startCoordinator(t, watcher)

	require.NoError(t, operator.Pause(context.Background(), "critical"))

	// The other process learns of the pause via broadcast, no resync needed
	assert.Eventually(t, func() bool {
		return len(watcher.Filter([]string{"critical"})) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFilterPreservesOrder(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "", time.Minute)
	startCoordinator(t, c)

	require.NoError(t, c.Pause(context.Background(), "b"))
	assert.Eventually(t, func() bool {
		return len(c.CachedPaused()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"a", "c"}, c.Filter([]string{"a", "b", "c"}))
}

func TestIsPausedIsAuthoritative(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "", time.Minute)
	ctx := context.Background()

	// No Start: the watcher is not running, so only the store can answer.
	require.NoError(t, c.Pause(ctx, "default"))

	paused, err := c.IsPaused(ctx, "default")
	require.NoError(t, err)
	assert.True(t, paused)

	names, err := c.ListPaused(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, names)
}

func TestPauseIsIdempotent(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "", time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Pause(ctx, "default"))
	require.NoError(t, c.Pause(ctx, "default"))

	names, err := c.ListPaused(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, names, "set semantics: no duplicates")
}

func TestResyncConvergesAfterDroppedBroadcast(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "", 50*time.Millisecond)
	startCoordinator(t, c)

	// Simulate a mutation whose broadcast was lost: write the store
	// directly, publish nothing.
	remote := newTestStore(t, srv)
	require.NoError(t, remote.Add(context.Background(), "silent"))

	assert.Eventually(t, func() bool {
		return len(c.Filter([]string{"silent"})) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, remote.Remove(context.Background(), "silent"))
	assert.Eventually(t, func() bool {
		return len(c.Filter([]string{"silent"})) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisabledSubsystemIsPassThrough(t *testing.T) {
	c := NewCoordinator(Options{
		Codec:   queuename.NewCodec("prefix"),
		Enabled: false,
	})
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Pause(ctx, "default"))
	require.NoError(t, c.Resume(ctx, "default"))

	paused, err := c.IsPaused(ctx, "default")
	require.NoError(t, err)
	assert.False(t, paused)

	names, err := c.ListPaused(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	in := []string{"a", "b", "c"}
	assert.Equal(t, in, c.Filter(in))
}

func TestNameFormInvariance(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "production", time.Minute)
	startCoordinator(t, c)
	ctx := context.Background()

	// Pause with the short form, filter with the expanded runtime form
	require.NoError(t, c.Pause(ctx, "default"))
	assert.Eventually(t, func() bool {
		return len(c.Filter([]string{"production:default"})) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The store holds the normalized form regardless of input shape
	require.NoError(t, c.Pause(ctx, "production:critical"))
	members, err := c.ListPaused(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical", "default"}, members)
}

func TestConcurrentPauseResumeConverges(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	a := newTestCoordinator(t, srv, "", time.Minute)
	b := newTestCoordinator(t, srv, "", time.Minute)
	startCoordinator(t, a)
	startCoordinator(t, b)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Pause(ctx, "q1")
		}()
		go func() {
			defer wg.Done()
			_ = b.Resume(ctx, "q1")
		}()
	}
	wg.Wait()

	// Let in-flight broadcasts drain before the reconciling resync
	time.Sleep(200 * time.Millisecond)

	// Whatever write landed last, both caches agree with the store after
	// a resync.
	require.NoError(t, a.Resync(ctx))
	require.NoError(t, b.Resync(ctx))

	inStore, err := a.IsPaused(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, inStore, len(a.Filter([]string{"q1"})) == 0)
	assert.Equal(t, inStore, len(b.Filter([]string{"q1"})) == 0)
}

func TestStartIsIdempotentAndStopHaltsResync(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(t, srv, "", 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return !c.LastResync().IsZero()
	}, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	last := c.LastResync()

	// A store change after Stop is not picked up by the (halted) timer
	remote := newTestStore(t, srv)
	require.NoError(t, remote.Add(ctx, "late"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, last, c.LastResync())
	assert.Equal(t, []string{"late"}, c.Filter([]string{"late"}))
}

func TestFilterOnNilCoordinator(t *testing.T) {
	var c *Coordinator
	in := []string{"a", "b"}
	assert.Equal(t, in, c.Filter(in))
}
