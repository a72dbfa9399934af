// Package metrics exposes the scheduler's Prometheus instrumentation.
// Every gauge/counter/histogram is registered once in init().
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervm_nodes_total",
			Help: "Total number of known nodes by status",
		},
		[]string{"status"},
	)

	NodeLoad = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervm_node_load_percent",
			Help: "Current reported load percentage per node",
		},
		[]string{"node_id"},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervm_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)

	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervm_tasks_submitted_total",
			Help: "Total number of tasks submitted by kind",
		},
		[]string{"kind"},
	)

	TaskOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervm_task_outcomes_total",
			Help: "Total number of completed tasks by kind and success/failure",
		},
		[]string{"kind", "outcome"},
	)

	TaskLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supervm_task_latency_seconds",
			Help:    "End-to-end task execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	PartitionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervm_partitions_dispatched_total",
			Help: "Total number of partitions dispatched by outcome",
		},
		[]string{"outcome"},
	)

	PartitionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supervm_partition_latency_seconds",
			Help:    "Per-partition dispatch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReservationRefusals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervm_reservation_refusals_total",
			Help: "Total number of tryReserve refusals by reason",
		},
		[]string{"reason"},
	)

	HealthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervm_health_probes_total",
			Help: "Total number of health probes issued by result",
		},
		[]string{"result"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervm_api_requests_total",
			Help: "Total number of API requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supervm_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		NodeLoad,
		TasksTotal,
		TasksSubmitted,
		TaskOutcome,
		TaskLatency,
		PartitionsDispatched,
		PartitionLatency,
		ReservationRefusals,
		HealthProbesTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
