package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Push/pull outcome metrics
	PushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membridge_pushes_total",
			Help: "Total number of push attempts by outcome",
		},
		[]string{"outcome"},
	)

	PullsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membridge_pulls_total",
			Help: "Total number of pull attempts by outcome",
		},
		[]string{"outcome"},
	)

	PushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "membridge_push_duration_seconds",
			Help:    "Time taken to complete a push attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PullDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "membridge_pull_duration_seconds",
			Help:    "Time taken to complete a pull attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Lock metrics
	LockTakeoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "membridge_lock_stale_takeovers_total",
			Help: "Total number of stale-lock takeovers performed",
		},
	)

	LockBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "membridge_lock_blocked_total",
			Help: "Total number of push attempts refused by the lock manager",
		},
	)

	// Leadership metrics
	LeaseEpoch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membridge_lease_epoch",
			Help: "Current lease epoch as last observed by this node, per project",
		},
		[]string{"canonical_id"},
	)

	RoleIsPrimary = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membridge_role_is_primary",
			Help: "Whether this node last determined itself primary for a project (1) or secondary (0)",
		},
		[]string{"canonical_id"},
	)

	// Heartbeat client metrics
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membridge_heartbeats_total",
			Help: "Total number of heartbeats sent by result",
		},
		[]string{"result"},
	)

	HeartbeatBackoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "membridge_heartbeat_backoff_seconds",
			Help: "Current heartbeat retry backoff in seconds (0 when healthy)",
		},
	)

	// Control plane HTTP metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membridge_api_requests_total",
			Help: "Total number of control-plane API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "membridge_api_request_duration_seconds",
			Help:    "Control-plane API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Job dispatch metrics
	JobsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membridge_jobs_dispatched_total",
			Help: "Total number of sync jobs dispatched by action and status",
		},
		[]string{"action", "status"},
	)
)

func init() {
	prometheus.MustRegister(PushesTotal)
	prometheus.MustRegister(PullsTotal)
	prometheus.MustRegister(PushDuration)
	prometheus.MustRegister(PullDuration)
	prometheus.MustRegister(LockTakeoversTotal)
	prometheus.MustRegister(LockBlockedTotal)
	prometheus.MustRegister(LeaseEpoch)
	prometheus.MustRegister(RoleIsPrimary)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(HeartbeatBackoffSeconds)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(JobsDispatchedTotal)
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
