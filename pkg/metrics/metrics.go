package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatcher and store collectors
type Metrics struct {
	// Dispatcher metrics
	BookingsProcessed *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	DueSetSize        prometheus.Gauge
	TicksSkipped      prometheus.Counter
	PublishLatency    *prometheus.HistogramVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New builds the collectors without registering them.
func New(namespace string) *Metrics {
	return &Metrics{
		BookingsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "bookings_processed_total",
			Help:      "Total number of due bookings handled, by platform and outcome",
		}, []string{"platform", "outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "tick_duration_seconds",
			Help:      "Time spent processing one dispatcher tick",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		DueSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "due_set_size",
			Help:      "Number of due bookings selected by the last tick",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running",
		}),
		PublishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "publish_duration_seconds",
			Help:      "Duration of platform publish calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"platform"}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// MustRegister registers every collector with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) *Metrics {
	reg.MustRegister(
		m.BookingsProcessed,
		m.TickDuration,
		m.DueSetSize,
		m.TicksSkipped,
		m.PublishLatency,
		m.DatabaseOperations,
	)
	return m
}
