package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestionMetrics covers the intake adapter, the durable queue, and
// the batch writer — one instance per process, shared across streams
// and distinguished by the "stream" label.
type IngestionMetrics struct {
	SamplesReceived *prometheus.CounterVec
	SamplesDropped  *prometheus.CounterVec
	EnqueueFailures *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	BatchSize       *prometheus.HistogramVec
	BatchDuration   *prometheus.HistogramVec
	BatchFailures   *prometheus.CounterVec
	DeadLettered    *prometheus.CounterVec
}

// NewIngestionMetrics creates and registers the ingestion metrics under
// the given namespace.
func NewIngestionMetrics(namespace string) *IngestionMetrics {
	m := &IngestionMetrics{
		SamplesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intake",
				Name:      "samples_received_total",
				Help:      "Total number of deliveries received by the intake adapter, before parsing and validation.",
			},
			[]string{"stream"},
		),
		SamplesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intake",
				Name:      "samples_dropped_total",
				Help:      "Total number of samples dropped for failing parse or validation.",
			},
			[]string{"stream", "reason"},
		),
		EnqueueFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intake",
				Name:      "enqueue_failures_total",
				Help:      "Total number of deliveries nacked because the durable queue was unavailable.",
			},
			[]string{"stream"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Most recently observed depth of a stream's durable queue.",
			},
			[]string{"stream"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "batch_size",
				Help:      "Number of jobs committed per batch transaction.",
				Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2000},
			},
			[]string{"stream"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "batch_duration_seconds",
				Help:      "Duration of a batch's dual-write transaction.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stream"},
		),
		BatchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "batch_failures_total",
				Help:      "Total number of batch transactions that rolled back.",
			},
			[]string{"stream"},
		),
		DeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "dead_lettered_total",
				Help:      "Total number of jobs moved to the dead-letter stream after exceeding the max attempt count.",
			},
			[]string{"stream"},
		),
	}

	MustRegister(
		m.SamplesReceived,
		m.SamplesDropped,
		m.EnqueueFailures,
		m.QueueDepth,
		m.BatchSize,
		m.BatchDuration,
		m.BatchFailures,
		m.DeadLettered,
	)

	return m
}
