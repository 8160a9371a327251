package pause

import (
	"context"
	"fmt"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
)

// pausedSetKey is the well-known Redis set holding the normalized names of
// every paused queue. It is shared by all processes in the fleet and is the
// single source of truth for pause state.
const pausedSetKey = "fleetq:paused"

// Store is the durable paused-queue set backed by Redis. All operations go
// through the circuit-breaker wrapper.
type Store struct {
	rdb *circuitbreaker.RedisWrapper
}

// NewStore creates a store over the given Redis wrapper.
func NewStore(rdb *circuitbreaker.RedisWrapper) *Store {
	return &Store{rdb: rdb}
}

// Add marks a queue as paused. Adding an already-paused queue is a no-op.
func (s *Store) Add(ctx context.Context, name string) error {
	if err := s.rdb.SAdd(ctx, pausedSetKey, name).Err(); err != nil {
		return fmt.Errorf("add paused queue %q: %w", name, err)
	}
	return nil
}

// Remove clears a queue's paused mark. Removing an absent queue is a no-op.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := s.rdb.SRem(ctx, pausedSetKey, name).Err(); err != nil {
		return fmt.Errorf("remove paused queue %q: %w", name, err)
	}
	return nil
}

// Contains reports whether a queue is currently marked paused.
func (s *Store) Contains(ctx context.Context, name string) (bool, error) {
	paused, err := s.rdb.SIsMember(ctx, pausedSetKey, name).Result()
	if err != nil {
		return false, fmt.Errorf("check paused queue %q: %w", name, err)
	}
	return paused, nil
}

// Members returns the full paused set in normalized form.
func (s *Store) Members(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, pausedSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list paused queues: %w", err)
	}
	return members, nil
}
