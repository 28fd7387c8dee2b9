// Package metrics provides Prometheus instrumentation for table state
// reconciliation.
//
// Metrics collected:
//   - tablestate_resolutions_total: initial-state resolutions by slice and winning source
//   - tablestate_fallbacks_total: malformed persisted values that fell back to defaults
//   - tablestate_bucket_writes_total: bucket writes by bucket, op and status
//   - tablestate_handler_duration_seconds: change-handler latency by slice
//   - tablestate_readiness_transitions_total: async filter readiness transitions
//   - tablestate_active_sessions: table sessions held by the HTTP host
//   - tablestate_watchers: open websocket watch streams
//
// A nil *Metrics is valid and records nothing, so packages can accept an
// optional collector without branching.
//
// Example:
//
//	m := metrics.New(metrics.WithNamespace("myapp"))
//	table, err := tablestate.New(ctx, facade, columns, tablestate.WithMetrics(m))
//
//	http.Handle("/metrics", promhttp.Handler())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Prometheus collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "tablestate").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for handler duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "tablestate",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors.
type Metrics struct {
	resolutions     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	bucketWrites    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	readiness       *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	watchers        prometheus.Gauge
}

// New registers the collectors with the configured registry.
// Registering twice on the same registry panics, as with promauto.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "resolutions_total",
			Help:        "Initial-state resolutions by slice and winning source",
			ConstLabels: config.ConstLabels,
		}, []string{"slice", "source"}),

		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fallbacks_total",
			Help:        "Malformed persisted values replaced by initial state or defaults",
			ConstLabels: config.ConstLabels,
		}, []string{"slice"}),

		bucketWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bucket_writes_total",
			Help:        "Bucket writes by bucket, operation and status",
			ConstLabels: config.ConstLabels,
		}, []string{"bucket", "op", "status"}),

		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_duration_seconds",
			Help:        "Change-handler duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"slice"}),

		readiness: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "readiness_transitions_total",
			Help:        "Async filter readiness transitions",
			ConstLabels: config.ConstLabels,
		}, []string{"from", "to"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of table sessions held by the HTTP host",
			ConstLabels: config.ConstLabels,
		}),

		watchers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watchers",
			Help:        "Number of open websocket watch streams",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// RecordResolve records which source won an initial-state resolution.
// source is one of "persisted", "initial" or "default".
func (m *Metrics) RecordResolve(slice, source string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(slice, source).Inc()
}

// RecordFallback records a malformed persisted value.
func (m *Metrics) RecordFallback(slice string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(slice).Inc()
}

// RecordWrite records a bucket write.
func (m *Metrics) RecordWrite(bucket, op string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.bucketWrites.WithLabelValues(bucket, op, status).Inc()
}

// ObserveHandler records how long a change handler took.
func (m *Metrics) ObserveHandler(slice string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(slice).Observe(d.Seconds())
}

// RecordReadiness records an async filter readiness transition.
func (m *Metrics) RecordReadiness(from, to string) {
	if m == nil {
		return
	}
	m.readiness.WithLabelValues(from, to).Inc()
}

// RecordSessionCreate records a new table session.
func (m *Metrics) RecordSessionCreate() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// RecordSessionDestroy records a table session being dropped.
func (m *Metrics) RecordSessionDestroy() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// RecordWatcherOpen records an opened watch stream.
func (m *Metrics) RecordWatcherOpen() {
	if m == nil {
		return
	}
	m.watchers.Inc()
}

// RecordWatcherClose records a closed watch stream.
func (m *Metrics) RecordWatcherClose() {
	if m == nil {
		return
	}
	m.watchers.Dec()
}
