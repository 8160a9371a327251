package circuitbreaker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	logger := zaptest.NewLogger(t)
	wrapper := NewRedisWrapper(client, logger)
	ctx := context.Background()

	if err := wrapper.Ping(ctx).Err(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	if err := wrapper.SAdd(ctx, "test:set", "a", "b").Err(); err != nil {
		t.Errorf("SAdd failed: %v", err)
	}

	isMember, err := wrapper.SIsMember(ctx, "test:set", "a").Result()
	if err != nil {
		t.Errorf("SIsMember failed: %v", err)
	}
	if !isMember {
		t.Error("Expected 'a' to be a member")
	}

	members, err := wrapper.SMembers(ctx, "test:set").Result()
	if err != nil {
		t.Errorf("SMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 members, got %v", members)
	}

	if n, err := wrapper.SRem(ctx, "test:set", "a").Result(); err != nil || n != 1 {
		t.Errorf("Expected 1 removed member, got %d (err=%v)", n, err)
	}

	// List ops used by the job fetch path
	if err := wrapper.LPush(ctx, "test:list", "x").Err(); err != nil {
		t.Errorf("LPush failed: %v", err)
	}
	val, err := wrapper.RPop(ctx, "test:list").Result()
	if err != nil {
		t.Errorf("RPop failed: %v", err)
	}
	if val != "x" {
		t.Errorf("Expected 'x', got %q", val)
	}

	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed after successful operations")
	}
}

func TestRedisWrapper_CircuitBreakerTriggering(t *testing.T) {
	// Client pointing at a non-existent server
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:9999",
	})
	defer client.Close()

	logger := zaptest.NewLogger(t)
	wrapper := NewRedisWrapper(client, logger)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := wrapper.Ping(ctx).Err(); err == nil {
			t.Error("Expected ping to fail against non-existent server")
		}
	}

	if !wrapper.IsCircuitBreakerOpen() {
		t.Error("Expected circuit breaker to be open after repeated failures")
	}

	// Subsequent calls fail fast
	if err := wrapper.SMembers(ctx, "any:key").Err(); err != ErrCircuitBreakerOpen {
		t.Errorf("Expected circuit breaker open error, got %v", err)
	}
}

func TestRedisWrapper_RedisNilNotAFailure(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	logger := zaptest.NewLogger(t)
	wrapper := NewRedisWrapper(client, logger)
	ctx := context.Background()

	// Popping an empty queue many times must not trip the breaker
	for i := 0; i < 10; i++ {
		if err := wrapper.RPop(ctx, "empty:queue").Err(); err != redis.Nil {
			t.Errorf("Expected redis.Nil, got %v", err)
		}
	}

	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed for redis.Nil results")
	}
}
