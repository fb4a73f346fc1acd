package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsRegistered is the current count of admitted jobs (schedule-based
	// and dependency-based together).
	JobsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedulerd_jobs_total",
			Help: "Total number of jobs currently registered",
		},
	)

	JobsDisabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedulerd_jobs_disabled_total",
			Help: "Total number of registered jobs currently disabled",
		},
	)

	TasksScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerd_tasks_scheduled_total",
			Help: "Total number of tasks handed to the task manager, by job",
		},
		[]string{"job"},
	)

	TasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerd_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal state, by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	TasksRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerd_tasks_retried_total",
			Help: "Total number of failed tasks re-enqueued for retry, by job",
		},
		[]string{"job"},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedulerd_scheduling_latency_seconds",
			Help:    "Time between a task's due instant and the engine handling its successful finish",
			Buckets: prometheus.DefBuckets,
		},
	)

	IterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedulerd_iteration_duration_seconds",
			Help:    "Time taken to run one horizon iteration across all streams",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedulerd_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedulerd_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedulerd_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedulerd_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerd_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedulerd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(JobsRegistered)
	prometheus.MustRegister(JobsDisabled)
	prometheus.MustRegister(TasksScheduled)
	prometheus.MustRegister(TasksFinished)
	prometheus.MustRegister(TasksRetried)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(IterationDuration)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
