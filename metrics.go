package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus instruments. Each instance owns
// its registry, so construction is safe to repeat in tests.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	activeRequests prometheus.Gauge
	requestsTotal  prometheus.Counter
	runsTotal      *prometheus.CounterVec
	modelCalls     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
}

// NewMetrics registers the service's instruments on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deliberation_active_requests",
			Help: "Number of HTTP requests currently being served.",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliberation_requests_total",
			Help: "Total HTTP requests served.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliberation_runs_total",
			Help: "Deliberation runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliberation_model_calls_total",
			Help: "Model calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deliberation_stage_duration_seconds",
			Help:    "Wall-clock duration of each deliberation stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeRequests,
		m.requestsTotal,
		m.runsTotal,
		m.modelCalls,
		m.stageDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return m
}

// IncrementActiveRequests marks one request in flight
func (m *Metrics) IncrementActiveRequests() {
	m.activeRequests.Inc()
}

// DecrementActiveRequests marks one request settled
func (m *Metrics) DecrementActiveRequests() {
	m.activeRequests.Dec()
}

// ObserveRun records a finished deliberation
func (m *Metrics) ObserveRun(mode Mode, status DeliberationStatus) {
	m.runsTotal.WithLabelValues(string(mode), string(status)).Inc()
}

// StageObserver adapts stage events into duration and call-outcome metrics
func (m *Metrics) StageObserver() StageObserver {
	return func(ev StageEvent) {
		if ev.Phase != PhaseComplete {
			return
		}
		m.stageDuration.WithLabelValues(ev.Stage).Observe(ev.Elapsed.Seconds())
		m.modelCalls.WithLabelValues(ev.Stage, "success").Add(float64(ev.Succeeded))
		m.modelCalls.WithLabelValues(ev.Stage, "failure").Add(float64(ev.Total - ev.Succeeded))
	}
}

// Middleware tracks request totals and in-flight requests
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.IncrementActiveRequests()
		defer m.DecrementActiveRequests()
		m.requestsTotal.Inc()
		c.Next()
	}
}

// WritePrometheus serves the metrics endpoint
func (m *Metrics) WritePrometheus(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}
