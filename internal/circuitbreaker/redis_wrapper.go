package circuitbreaker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper wraps the Redis client operations the pause subsystem and the
// job fetch path depend on, routing each call through a circuit breaker.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := New("redis", RedisConfig(), logger)
	GlobalMetricsCollector.Register("redis", "pause-coordinator", cb)

	return &RedisWrapper{
		client: client,
		cb:     cb,
		logger: logger,
	}
}

func (rw *RedisWrapper) record(err error, nilOK bool) {
	success := err == nil || (nilOK && err == redis.Nil)
	GlobalMetricsCollector.RecordRequest("redis", "pause-coordinator", rw.cb.State(), success)
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SAdd wraps Redis SADD with circuit breaker
func (rw *RedisWrapper) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.SAdd(ctx, key, members...)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SRem wraps Redis SREM with circuit breaker
func (rw *RedisWrapper) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.SRem(ctx, key, members...)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SIsMember wraps Redis SISMEMBER with circuit breaker
func (rw *RedisWrapper) SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd {
	var result *redis.BoolCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.SIsMember(ctx, key, member)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewBoolCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SMembers wraps Redis SMEMBERS with circuit breaker
func (rw *RedisWrapper) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.SMembers(ctx, key)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Publish wraps Redis PUBLISH with circuit breaker
func (rw *RedisWrapper) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Publish(ctx, channel, message)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// LPush wraps Redis LPUSH with circuit breaker
func (rw *RedisWrapper) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.LPush(ctx, key, values...)
		return result.Err()
	})
	rw.record(err, false)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// RPop wraps Redis RPOP with circuit breaker. Redis Nil (empty queue) is not
// counted as a breaker failure.
func (rw *RedisWrapper) RPop(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.RPop(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})
	rw.record(err, true)

	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// Client returns the underlying Redis client for operations not covered by
// the wrapper (long-lived pub/sub subscriptions in particular).
func (rw *RedisWrapper) Client() *redis.Client {
	return rw.client
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
