package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pause state metrics
	PauseEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetq_pause_events_applied_total",
			Help: "Total number of pause/resume events applied to the local cache",
		},
		[]string{"kind", "source"},
	)

	PausedQueuesCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetq_paused_queues_cached",
			Help: "Number of queue names currently held in the local paused cache",
		},
	)

	BroadcastsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetq_broadcasts_published_total",
			Help: "Total number of pause/resume broadcasts published",
		},
		[]string{"kind"},
	)

	BroadcastsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetq_broadcasts_received_total",
			Help: "Total number of pause/resume broadcasts received",
		},
		[]string{"kind"},
	)

	BroadcastHandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetq_broadcast_handler_panics_total",
			Help: "Total number of recovered panics in broadcast message handlers",
		},
	)

	// Resync metrics
	ResyncRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetq_resync_runs_total",
			Help: "Total number of full cache resyncs against the shared store",
		},
	)

	ResyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetq_resync_failures_total",
			Help: "Total number of failed resync attempts",
		},
	)

	ResyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetq_resync_duration_seconds",
			Help:    "Duration of full cache resyncs in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// Hot path metrics
	FilterDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetq_filter_degradations_total",
			Help: "Total number of filter calls that degraded to unfiltered pass-through",
		},
	)

	QueuesFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetq_queues_filtered_total",
			Help: "Total number of queue names removed from candidate lists by filtering",
		},
	)

	// Worker metrics
	JobsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetq_jobs_fetched_total",
			Help: "Total number of jobs fetched from queues",
		},
		[]string{"queue"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetq_jobs_failed_total",
			Help: "Total number of jobs whose handler returned an error",
		},
		[]string{"queue"},
	)

	FetchIdlePolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetq_fetch_idle_polls_total",
			Help: "Total number of fetch polls that found no eligible queue or no work",
		},
	)
)
