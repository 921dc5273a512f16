// Package metrics exposes watcher counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/docker"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "shuttlewatch"

// Metrics satisfies the poller, runner and scheduler observation interfaces.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        prometheus.Registerer
	gatherer        prometheus.Gatherer
	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	sessionsStarted prometheus.Counter
	sessionFailures *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	jobsActive      prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		gatherer: reg,
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Polling cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_cycle_duration_seconds",
				Help:      "Duration of polling cycles",
				Buckets:   []float64{.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications sent by kind",
			},
			[]string{"kind"},
		),
		sessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_sessions_started_total",
				Help:      "Browser sessions opened",
			},
		),
		sessionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_session_failures_total",
				Help:      "Browser sessions replaced after a failure",
			},
			[]string{"reason"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_sessions_active",
				Help:      "Browser sessions currently open",
			},
		),
		jobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_running",
				Help:      "Jobs with a live runner",
			},
		),
	}

	reg.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.notifications,
		m.sessionsStarted,
		m.sessionFailures,
		m.sessionsActive,
		m.jobsActive,
	)
	return m
}

// RegisterContainerMetrics exports the container runtime counters.
func (m *Metrics) RegisterContainerMetrics(namespace string, dm *docker.Metrics) {
	if m == nil || dm == nil {
		return
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	counter := func(name, help string, load func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}
	m.registry.MustRegister(
		counter("browser_containers_started_total", "Browser containers started", dm.Started.Load),
		counter("browser_containers_removed_total", "Browser containers removed", dm.Removed.Load),
		counter("browser_container_start_failures_total", "Browser container start failures", dm.StartFailures.Load),
		counter("browser_container_circuit_trips_total", "Times the container circuit breaker opened", dm.CircuitTrips.Load),
		counter("browser_container_throttled_total", "Container starts rejected by the rate limiter", dm.Throttled.Load),
	)
}

func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) CountNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) SessionFailed(reason string) {
	if m == nil {
		return
	}
	m.sessionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetActiveJobs(n int) {
	if m == nil {
		return
	}
	m.jobsActive.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", logger.Field{Key: "addr", Value: addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
