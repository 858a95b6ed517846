package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for macup runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Section metrics
	sectionsCompleted *prometheus.CounterVec
	sectionDuration   *prometheus.HistogramVec

	// Item metrics
	itemOutcomes *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec

	// Backend metrics
	backendQueryErrors *prometheus.CounterVec
	runtimeInstalls    *prometheus.CounterVec

	// System metrics
	installsInFlight prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance; every Record method checks for nil collectors
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

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		sectionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sections_completed_total",
				Help:      "Total number of sections completed",
			},
			[]string{"backend", "status"},
		),
		sectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "section_duration_seconds",
				Help:      "Duration of section execution in seconds",
				Buckets:   buckets,
			},
			[]string{"backend"},
		),

		itemOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Total number of items by outcome",
			},
			[]string{"backend", "outcome"},
		),
		itemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_install_duration_seconds",
				Help:      "Duration of item installs in seconds",
				Buckets:   buckets,
			},
			[]string{"backend"},
		),

		backendQueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_query_errors_total",
				Help:      "Total number of failed installed-state queries",
			},
			[]string{"backend"},
		),
		runtimeInstalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runtime_installs_total",
				Help:      "Total number of backend runtime auto-installations",
			},
			[]string{"backend", "status"},
		),

		installsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "installs_in_flight",
				Help:      "Current number of running item installs",
			},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.sectionsCompleted,
		m.sectionDuration,
		m.itemOutcomes,
		m.itemDuration,
		m.backendQueryErrors,
		m.runtimeInstalls,
		m.installsInFlight,
	)

	return m, nil
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Run Metrics

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Section Metrics

// RecordSectionCompleted records a finished section.
func (m *Metrics) RecordSectionCompleted(backend, status string, duration time.Duration) {
	if m.sectionsCompleted == nil {
		return
	}
	m.sectionsCompleted.WithLabelValues(backend, status).Inc()
	m.sectionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// Item Metrics

// RecordItemOutcome records the outcome of one item. Install durations are
// only observed for items that actually ran.
func (m *Metrics) RecordItemOutcome(backend, outcome string, duration time.Duration) {
	if m.itemOutcomes == nil {
		return
	}
	m.itemOutcomes.WithLabelValues(backend, outcome).Inc()
	if duration > 0 {
		m.itemDuration.WithLabelValues(backend).Observe(duration.Seconds())
	}
}

// InstallStarted increments the in-flight install gauge.
func (m *Metrics) InstallStarted() {
	if m.installsInFlight == nil {
		return
	}
	m.installsInFlight.Inc()
}

// InstallFinished decrements the in-flight install gauge.
func (m *Metrics) InstallFinished() {
	if m.installsInFlight == nil {
		return
	}
	m.installsInFlight.Dec()
}

// Backend Metrics

// RecordBackendQueryError records a failed installed-state query.
func (m *Metrics) RecordBackendQueryError(backend string) {
	if m.backendQueryErrors == nil {
		return
	}
	m.backendQueryErrors.WithLabelValues(backend).Inc()
}

// RecordRuntimeInstall records a runtime auto-installation attempt.
func (m *Metrics) RecordRuntimeInstall(backend, status string) {
	if m.runtimeInstalls == nil {
		return
	}
	m.runtimeInstalls.WithLabelValues(backend, status).Inc()
}

// WriteTextfile writes the registry to path in the node-exporter textfile
// collector format. It is a no-op when metrics are disabled.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
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

// StartMetricsServer starts an HTTP server exposing metrics when a listen
// address is configured. Serve errors are reported through errCh.
func (m *Metrics) StartMetricsServer(errCh chan<- error) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
