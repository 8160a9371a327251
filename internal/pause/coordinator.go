// Package pause coordinates queue pause state across a fleet of worker
// processes. A durable Redis set is the source of truth, a pub/sub broadcast
// propagates changes to live processes with low latency, and a periodic full
// resync reconciles each process's in-memory cache against the set so that
// lost broadcasts never cause permanent drift.
package pause

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetq/fleetq/internal/metrics"
	"github.com/fleetq/fleetq/internal/queuename"
)

// DefaultResyncInterval is the cadence of full cache reconciliation against
// the shared store when no interval is configured.
const DefaultResyncInterval = 60 * time.Second

// Options configures a Coordinator.
type Options struct {
	Store       *Store
	Broadcaster *Broadcaster
	Codec       queuename.Codec
	Logger      *zap.Logger

	// Enabled is the master switch. When false every operation is a
	// no-op: mutations return nil, reads report nothing paused, and
	// Filter passes its input through unchanged.
	Enabled bool

	// ResyncInterval overrides DefaultResyncInterval when positive.
	ResyncInterval time.Duration
}

// Coordinator is the per-process authority for queue pause state. It owns
// the in-memory cache of paused queue names (in expanded form) and is the
// only writer to it: broadcast handlers, the resync loop, and the initial
// sync all funnel through the same mutex.
type Coordinator struct {
	store          *Store
	bcast          *Broadcaster
	codec          queuename.Codec
	logger         *zap.Logger
	enabled        bool
	resyncInterval time.Duration

	mu         sync.RWMutex
	paused     map[string]struct{}
	lastResync time.Time

	startMu    sync.Mutex
	started    bool
	stopResync chan struct{}
	resyncDone chan struct{}
}

// NewCoordinator creates a coordinator. It does not touch Redis until Start
// or one of the store-backed operations is called.
func NewCoordinator(opts Options) *Coordinator {
	interval := opts.ResyncInterval
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:          opts.Store,
		bcast:          opts.Broadcaster,
		codec:          opts.Codec,
		logger:         logger,
		enabled:        opts.Enabled,
		resyncInterval: interval,
		paused:         make(map[string]struct{}),
	}
}

// Enabled reports whether the subsystem is active for this process.
func (c *Coordinator) Enabled() bool {
	return c.enabled
}

// Start subscribes to broadcasts, performs the initial authoritative sync
// once the subscription is live, and launches the resync loop. It is safe to
// call from multiple startup hooks; only the first call does anything.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}

	c.bcast.Receive(KindPause, func(name string) error {
		c.applyPause(name, "broadcast")
		return nil
	})
	c.bcast.Receive(KindResume, func(name string) error {
		c.applyResume(name, "broadcast")
		return nil
	})
	c.bcast.Ready(func() {
		if err := c.Resync(ctx); err != nil {
			c.logger.Warn("Initial pause state sync failed", zap.Error(err))
		}
	})

	if err := c.bcast.Start(ctx); err != nil {
		return fmt.Errorf("start pause broadcaster: %w", err)
	}

	c.stopResync = make(chan struct{})
	c.resyncDone = make(chan struct{})
	go c.resyncLoop()

	c.started = true
	c.logger.Info("Pause coordinator started",
		zap.Duration("resync_interval", c.resyncInterval),
		zap.String("queue_prefix", c.codec.Prefix()),
	)
	return nil
}

// Stop halts the resync loop. The subscription and cache are left in place;
// they are torn down with the process.
func (c *Coordinator) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.started {
		return
	}
	close(c.stopResync)
	<-c.resyncDone
	c.started = false
	c.logger.Info("Pause coordinator stopped")
}

// Pause marks a queue as paused fleet-wide: it adds the normalized name to
// the shared store and broadcasts the change. Pausing an already-paused
// queue is idempotent but still broadcasts; subscribers apply updates
// idempotently. Store and publish errors are surfaced to the caller.
func (c *Coordinator) Pause(ctx context.Context, queueName string) error {
	if !c.enabled {
		return nil
	}
	name := c.codec.Normalize(queueName)

	if err := c.store.Add(ctx, name); err != nil {
		return err
	}
	c.applyPause(name, "local")

	if err := c.bcast.Transmit(ctx, KindPause, name); err != nil {
		return err
	}
	c.logger.Info("Paused queue", zap.String("queue", name))
	return nil
}

// Resume clears a queue's paused mark fleet-wide.
func (c *Coordinator) Resume(ctx context.Context, queueName string) error {
	if !c.enabled {
		return nil
	}
	name := c.codec.Normalize(queueName)

	if err := c.store.Remove(ctx, name); err != nil {
		return err
	}
	c.applyResume(name, "local")

	if err := c.bcast.Transmit(ctx, KindResume, name); err != nil {
		return err
	}
	c.logger.Info("Resumed queue", zap.String("queue", name))
	return nil
}

// IsPaused reports a queue's pause state from the shared store, not the
// local cache. This is the authoritative (and slower) read for explicit
// status checks; the hot path uses Filter instead.
func (c *Coordinator) IsPaused(ctx context.Context, queueName string) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	return c.store.Contains(ctx, c.codec.Normalize(queueName))
}

// ListPaused returns the full paused set from the shared store in normalized
// form, sorted for stable output.
func (c *Coordinator) ListPaused(ctx context.Context) ([]string, error) {
	if !c.enabled {
		return nil, nil
	}
	members, err := c.store.Members(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// Filter returns candidates minus the queues currently cached as paused,
// preserving input order. It never performs I/O: membership is tested
// against the in-memory cache under a read lock, so it is safe to call
// before every job fetch. Any internal failure degrades to returning the
// input unfiltered; job processing must never stall on pause bookkeeping.
func (c *Coordinator) Filter(candidates []string) (allowed []string) {
	if c == nil || !c.enabled {
		return candidates
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.FilterDegradations.Inc()
			c.logger.Error("Queue filter failed, passing candidates through unfiltered",
				zap.Any("panic", r),
			)
			allowed = candidates
		}
	}()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.paused) == 0 {
		return candidates
	}

	allowed = make([]string, 0, len(candidates))
	removed := 0
	for _, q := range candidates {
		if _, paused := c.paused[c.codec.Expand(q)]; paused {
			removed++
			continue
		}
		allowed = append(allowed, q)
	}
	if removed > 0 {
		metrics.QueuesFiltered.Add(float64(removed))
	}
	return allowed
}

// Resync reloads the full paused set from the shared store and atomically
// replaces the cache. Callers see either the pre- or post-resync set, never
// an interleaving.
func (c *Coordinator) Resync(ctx context.Context) error {
	start := time.Now()

	members, err := c.store.Members(ctx)
	if err != nil {
		metrics.ResyncFailures.Inc()
		return fmt.Errorf("resync pause state: %w", err)
	}

	next := make(map[string]struct{}, len(members))
	for _, name := range members {
		next[c.codec.Expand(name)] = struct{}{}
	}

	c.mu.Lock()
	c.paused = next
	c.lastResync = time.Now()
	c.mu.Unlock()

	metrics.ResyncRuns.Inc()
	metrics.ResyncDuration.Observe(time.Since(start).Seconds())
	metrics.PausedQueuesCached.Set(float64(len(next)))

	c.logger.Debug("Pause state resynced",
		zap.Int("paused_queues", len(next)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// LastResync returns the time of the last successful resync, zero if none
// has completed yet.
func (c *Coordinator) LastResync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResync
}

// CachedPaused returns a sorted snapshot of the cache in expanded form.
func (c *Coordinator) CachedPaused() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.paused))
	for name := range c.paused {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// applyPause adds a normalized name to the cache. Idempotent: repeated
// broadcasts for the same queue leave the cache unchanged.
func (c *Coordinator) applyPause(name, source string) {
	expanded := c.codec.Expand(name)

	c.mu.Lock()
	_, present := c.paused[expanded]
	if !present {
		c.paused[expanded] = struct{}{}
	}
	size := len(c.paused)
	c.mu.Unlock()

	if !present {
		metrics.PauseEventsApplied.WithLabelValues(string(KindPause), source).Inc()
		metrics.PausedQueuesCached.Set(float64(size))
		c.logger.Debug("Applied pause",
			zap.String("queue", name),
			zap.String("source", source),
		)
	}
}

func (c *Coordinator) applyResume(name, source string) {
	expanded := c.codec.Expand(name)

	c.mu.Lock()
	_, present := c.paused[expanded]
	if present {
		delete(c.paused, expanded)
	}
	size := len(c.paused)
	c.mu.Unlock()

	if present {
		metrics.PauseEventsApplied.WithLabelValues(string(KindResume), source).Inc()
		metrics.PausedQueuesCached.Set(float64(size))
		c.logger.Debug("Applied resume",
			zap.String("queue", name),
			zap.String("source", source),
		)
	}
}

// resyncLoop runs a full resync immediately, then on every tick until Stop.
// Failures are logged and retried on the next tick, never fatal.
func (c *Coordinator) resyncLoop() {
	defer close(c.resyncDone)

	ticker := time.NewTicker(c.resyncInterval)
	defer ticker.Stop()

	for {
		if err := c.Resync(context.Background()); err != nil {
			c.logger.Warn("Pause state resync failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-c.stopResync:
			return
		}
	}
}
