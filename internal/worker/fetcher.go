// Package worker implements the job fetch loop: it filters the configured
// queues through the pause coordinator before every fetch, pops one job, and
// hands it to the registered handler.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
	"github.com/fleetq/fleetq/internal/metrics"
	"github.com/fleetq/fleetq/internal/pause"
)

// Job is one unit of work pulled from a queue.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// HandlerFunc processes a fetched job.
type HandlerFunc func(ctx context.Context, job *Job) error

// queueKey returns the Redis list key backing a runtime queue name.
func queueKey(name string) string {
	return "fleetq:queue:" + name
}

// Fetcher pulls jobs from the configured queues in priority order. The pause
// filter runs before every poll, so a pause observed by this process takes
// effect on the very next fetch.
type Fetcher struct {
	rdb     *circuitbreaker.RedisWrapper
	coord   *pause.Coordinator
	queues  []string
	handler HandlerFunc
	logger  *zap.Logger

	limiter      *rate.Limiter
	pollInterval time.Duration
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Redis       *circuitbreaker.RedisWrapper
	Coordinator *pause.Coordinator
	Queues      []string
	Handler     HandlerFunc
	Logger      *zap.Logger

	// PollInterval is how long to wait after an idle poll. Default 1s.
	PollInterval time.Duration
	// FetchRate caps fetch attempts per second. Default 100.
	FetchRate float64
	// FetchBurst is the limiter burst. Default 10.
	FetchBurst int
}

// NewFetcher creates a fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.FetchRate <= 0 {
		opts.FetchRate = 100
	}
	if opts.FetchBurst <= 0 {
		opts.FetchBurst = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		rdb:          opts.Redis,
		coord:        opts.Coordinator,
		queues:       opts.Queues,
		handler:      opts.Handler,
		logger:       logger,
		limiter:      rate.NewLimiter(rate.Limit(opts.FetchRate), opts.FetchBurst),
		pollInterval: opts.PollInterval,
	}
}

// Run fetches and processes jobs until the context is cancelled.
func (f *Fetcher) Run(ctx context.Context) error {
	f.logger.Info("Job fetcher started", zap.Strings("queues", f.queues))
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		fetched, err := f.fetchOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("Job fetch failed", zap.Error(err))
		}

		if !fetched {
			metrics.FetchIdlePolls.Inc()
			select {
			case <-time.After(f.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// fetchOne polls the allowed queues in order and processes the first job
// found. Returns false when every queue was paused or empty.
func (f *Fetcher) fetchOne(ctx context.Context) (bool, error) {
	for _, q := range f.coord.Filter(f.queues) {
		raw, err := f.rdb.RPop(ctx, queueKey(q)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("pop from queue %q: %w", q, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			f.logger.Error("Dropping undecodable job",
				zap.String("queue", q),
				zap.Error(err),
			)
			continue
		}

		metrics.JobsFetched.WithLabelValues(q).Inc()
		if err := f.handler(ctx, &job); err != nil {
			metrics.JobsFailed.WithLabelValues(q).Inc()
			f.logger.Error("Job handler failed",
				zap.String("queue", q),
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
		return true, nil
	}
	return false, nil
}

// Enqueue pushes a job onto a queue. Used by producers and tests.
func Enqueue(ctx context.Context, rdb *circuitbreaker.RedisWrapper, queue string, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queue,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	if err := rdb.LPush(ctx, queueKey(queue), data).Err(); err != nil {
		return nil, fmt.Errorf("enqueue to %q: %w", queue, err)
	}
	return job, nil
}
