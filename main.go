package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
	"github.com/fleetq/fleetq/internal/config"
	"github.com/fleetq/fleetq/internal/health"
	_ "github.com/fleetq/fleetq/internal/metrics" // register metrics
	"github.com/fleetq/fleetq/internal/pause"
	"github.com/fleetq/fleetq/internal/queuename"
	"github.com/fleetq/fleetq/internal/worker"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	rdb := circuitbreaker.NewRedisWrapper(redisClient, logger)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancelPing()

	codec := queuename.NewCodec(cfg.Queue.Prefix)
	coord := pause.NewCoordinator(pause.Options{
		Store:          pause.NewStore(rdb),
		Broadcaster:    pause.NewBroadcaster(rdb, logger),
		Codec:          codec,
		Logger:         logger,
		Enabled:        cfg.Pause.Enabled,
		ResyncInterval: cfg.Pause.ResyncInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		logger.Fatal("Failed to start pause coordinator", zap.Error(err))
	}

	// Admin HTTP: health + metrics, up before the fetch loop so probes
	// respond during startup.
	httpMux := http.NewServeMux()
	healthHandler := health.NewHTTPHandler(logger,
		health.NewRedisChecker(rdb, logger),
		health.NewCoordinatorChecker(coord, cfg.Pause.ResyncInterval),
	)
	healthHandler.RegisterRoutes(httpMux)
	httpMux.Handle("/metrics", promhttp.Handler())

	adminSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Health.Port),
		Handler:      httpMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Health.Port))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	fetcher := worker.NewFetcher(worker.FetcherOptions{
		Redis:        rdb,
		Coordinator:  coord,
		Queues:       expandQueues(codec, cfg.Queue.Names),
		Handler:      logJob(logger),
		Logger:       logger,
		PollInterval: cfg.Worker.PollInterval,
		FetchRate:    cfg.Worker.FetchRate,
		FetchBurst:   cfg.Worker.FetchBurst,
	})

	fetchDone := make(chan struct{})
	go func() {
		defer close(fetchDone)
		if err := fetcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Job fetcher exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	// Quiesce order: stop pulling work, stop the resync timer, then tear
	// down shared clients.
	<-fetchDone
	coord.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	_ = rdb.Close()

	logger.Info("Shutdown complete")
}

// expandQueues maps configured short queue names to their runtime form.
func expandQueues(codec queuename.Codec, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, codec.Expand(n))
	}
	return out
}

// logJob is the default handler wired in until a real executor is plugged
// in by the embedding deployment.
func logJob(logger *zap.Logger) worker.HandlerFunc {
	return func(ctx context.Context, job *worker.Job) error {
		logger.Info("Processed job",
			zap.String("job_id", job.ID),
			zap.String("queue", job.Queue),
			zap.Int("payload_bytes", len(job.Payload)),
		)
		return nil
	}
}
