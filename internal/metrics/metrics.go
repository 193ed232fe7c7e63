package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the publisher
type Metrics struct {
	// Publication metrics
	CardsPublished  prometheus.Counter
	PublishDuration prometheus.Histogram
	PublishErrors   *prometheus.CounterVec

	// Scheduler metrics
	ScheduledRuns prometheus.Counter
	RetriedRuns   prometheus.Counter
}

var globalMetrics *Metrics

// Init initializes the Prometheus metrics
func Init() *Metrics {
	metrics := &Metrics{
		// Successful card publications (skipped idempotent runs excluded)
		CardsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "btp4ai_wire_cards_published_total",
			Help: "Total number of cards committed to the content repository",
		}),

		// End-to-end publish latency, dominated by the research call and the
		// GitHub Contents API round trips
		PublishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "btp4ai_wire_publish_duration_seconds",
			Help:    "Publish pipeline latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		// Publish failures by kind (config, conflict, store)
		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "btp4ai_wire_publish_errors_total",
			Help: "Total number of publish failures by error kind",
		}, []string{"kind"}),

		ScheduledRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "btp4ai_wire_scheduled_runs_total",
			Help: "Total number of scheduler-initiated publish runs",
		}),

		RetriedRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "btp4ai_wire_retried_runs_total",
			Help: "Total number of publish runs retried after a cooldown",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	return globalMetrics
}
