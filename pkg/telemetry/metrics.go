package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the ignition service. When
// metrics are disabled every recording method is a no-op, so callers never
// have to branch on configuration.
type Metrics struct {
	config MetricsConfig

	// Ignition metrics
	ignitionsStarted   *prometheus.CounterVec
	ignitionsCompleted *prometheus.CounterVec
	ignitionDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Compensation metrics
	rollbacks    prometheus.Counter
	undoFailures *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeIgnitions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		ignitionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ignitions_started_total",
				Help:      "Total number of workspace ignitions started",
			},
			[]string{"requested_by"},
		),
		ignitionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ignitions_completed_total",
				Help:      "Total number of workspace ignitions completed",
			},
			[]string{"status"},
		),
		ignitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ignition_duration_seconds",
				Help:      "End-to-end duration of workspace ignitions in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ignition_steps_total",
				Help:      "Total number of ignition steps executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ignition_step_duration_seconds",
				Help:      "Duration of individual ignition steps in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),

		rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ignition_rollbacks_total",
				Help:      "Total number of ignitions that triggered compensation",
			},
		),
		undoFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ignition_undo_failures_total",
				Help:      "Total number of compensating actions that failed",
			},
			[]string{"step"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeIgnitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_ignitions",
				Help:      "Current number of in-flight ignitions",
			},
		),
	}

	registry.MustRegister(
		m.ignitionsStarted,
		m.ignitionsCompleted,
		m.ignitionDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.rollbacks,
		m.undoFailures,
		m.errorsByClass,
		m.errorsByCode,
		m.activeIgnitions,
	)

	return m, nil
}

// RecordIgnitionStarted increments the counter for started ignitions.
func (m *Metrics) RecordIgnitionStarted(requestedBy string) {
	if m.ignitionsStarted == nil {
		return
	}
	m.ignitionsStarted.WithLabelValues(requestedBy).Inc()
	m.activeIgnitions.Inc()
}

// RecordIgnitionCompleted records a finished ignition with its final status
// and end-to-end duration.
func (m *Metrics) RecordIgnitionCompleted(status string, duration time.Duration) {
	if m.ignitionsCompleted == nil {
		return
	}
	m.ignitionsCompleted.WithLabelValues(status).Inc()
	m.ignitionDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeIgnitions.Dec()
}

// RecordStep records the execution of one saga step.
func (m *Metrics) RecordStep(step, status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordRollback records an ignition that entered compensation.
func (m *Metrics) RecordRollback() {
	if m.rollbacks == nil {
		return
	}
	m.rollbacks.Inc()
}

// RecordUndoFailure records a compensating action that failed.
func (m *Metrics) RecordUndoFailure(step string) {
	if m.undoFailures == nil {
		return
	}
	m.undoFailures.WithLabelValues(step).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
