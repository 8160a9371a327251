package pause

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
	"github.com/fleetq/fleetq/internal/metrics"
)

// MessageKind identifies a broadcast message type.
type MessageKind string

const (
	KindPause  MessageKind = "pause"
	KindResume MessageKind = "resume"
)

// channel returns the Redis pub/sub channel for this kind.
func (k MessageKind) channel() string {
	return "fleetq:" + string(k)
}

// Handler processes a received broadcast payload (a normalized queue name).
// A returned error is logged; it does not stop the dispatch loop.
type Handler func(queueName string) error

// Broadcaster fans pause/resume notifications out to every live process over
// Redis pub/sub. Delivery is best effort: messages published while a process
// is down or partitioned are simply lost, and the periodic resync is what
// restores correctness afterwards.
type Broadcaster struct {
	rdb    *circuitbreaker.RedisWrapper
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[MessageKind][]Handler
	readyFns []func()
	started  bool
	ready    bool

	pubsub    *redis.PubSub
	done      chan struct{}
	closeOnce sync.Once
}

// NewBroadcaster creates a broadcaster over the given Redis wrapper.
func NewBroadcaster(rdb *circuitbreaker.RedisWrapper, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		rdb:      rdb,
		logger:   logger,
		handlers: make(map[MessageKind][]Handler),
		done:     make(chan struct{}),
	}
}

// Receive registers a handler for messages of the given kind, for the
// lifetime of the process.
func (b *Broadcaster) Receive(kind MessageKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Ready registers a callback fired exactly once, after this process's
// subscription is established. Callbacks registered after that point are
// invoked immediately.
func (b *Broadcaster) Ready(fn func()) {
	b.mu.Lock()
	alreadyReady := b.ready
	if !alreadyReady {
		b.readyFns = append(b.readyFns, fn)
	}
	b.mu.Unlock()

	if alreadyReady {
		fn()
	}
}

// Transmit publishes a message to all subscribed processes. Fire and forget:
// there is no delivery acknowledgment and no ordering guarantee across
// publishers.
func (b *Broadcaster) Transmit(ctx context.Context, kind MessageKind, payload string) error {
	if err := b.rdb.Publish(ctx, kind.channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish %s broadcast: %w", kind, err)
	}
	metrics.BroadcastsPublished.WithLabelValues(string(kind)).Inc()
	return nil
}

// Start subscribes to the pause and resume channels, fires the ready
// callbacks once the subscription is confirmed by the server, and launches
// the dispatch goroutine. Calling Start more than once is a no-op.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	pubsub := b.rdb.Client().Subscribe(ctx, KindPause.channel(), KindResume.channel())

	// Block until the server acknowledges the subscription so the ready
	// callbacks can rely on the subscription being live.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		b.mu.Lock()
		b.started = false
		b.mu.Unlock()
		return fmt.Errorf("subscribe to pause channels: %w", err)
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.ready = true
	readyFns := b.readyFns
	b.readyFns = nil
	b.mu.Unlock()

	for _, fn := range readyFns {
		fn()
	}

	b.logger.Info("Pause broadcaster subscribed",
		zap.String("channels", KindPause.channel()+","+KindResume.channel()),
	)

	go b.dispatch(pubsub.Channel())
	return nil
}

// Close tears down the subscription and stops the dispatch goroutine.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	b.closeOnce.Do(func() { close(b.done) })
	if pubsub != nil {
		return pubsub.Close()
	}
	return nil
}

func (b *Broadcaster) dispatch(ch <-chan *redis.Message) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatchMessage(msg)
		case <-b.done:
			return
		}
	}
}

// dispatchMessage invokes every registered handler for the message's kind.
// Handler panics are recovered so a bad update can never kill the dispatch
// goroutine; the next message or resync tick corrects state.
func (b *Broadcaster) dispatchMessage(msg *redis.Message) {
	var kind MessageKind
	switch msg.Channel {
	case KindPause.channel():
		kind = KindPause
	case KindResume.channel():
		kind = KindResume
	default:
		b.logger.Warn("Dropping message from unknown channel", zap.String("channel", msg.Channel))
		return
	}

	metrics.BroadcastsReceived.WithLabelValues(string(kind)).Inc()

	b.mu.Lock()
	handlers := b.handlers[kind]
	b.mu.Unlock()

	for _, h := range handlers {
		b.invoke(kind, h, msg.Payload)
	}
}

func (b *Broadcaster) invoke(kind MessageKind, h Handler, payload string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BroadcastHandlerPanics.Inc()
			b.logger.Error("Broadcast handler panicked",
				zap.String("kind", string(kind)),
				zap.String("queue", payload),
				zap.Any("panic", r),
			)
		}
	}()

	if err := h(payload); err != nil {
		b.logger.Error("Broadcast handler failed",
			zap.String("kind", string(kind)),
			zap.String("queue", payload),
			zap.Error(err),
		)
	}
}
