// Package metrics exposes prometheus collectors for analyses and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuanqi-assessment-server/internal/domain"
)

const namespace = "yuanqi"

// Metrics holds the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	analysesTotal      *prometheus.CounterVec
	analysisFailures   *prometheus.CounterVec
	analysisDuration   *prometheus.HistogramVec
	assessmentsCreated prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	wsClients          prometheus.Gauge
}

// New creates and registers all collectors, including the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed symptom analyses by source and health level.",
		}, []string{"source", "health_level"}),
		analysisFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Failed symptom analyses by source and error code.",
		}, []string{"source", "reason"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent resolving the catalog and scoring an assessment.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"source"}),
		assessmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_created_total",
			Help:      "Stored assessments.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected websocket event subscribers.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.analysesTotal,
		m.analysisFailures,
		m.analysisDuration,
		m.assessmentsCreated,
		m.httpRequests,
		m.httpDuration,
		m.wsClients,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveAnalysis(source string, duration time.Duration, level domain.HealthLevel) {
	m.analysesTotal.WithLabelValues(source, string(level)).Inc()
	m.analysisDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) AnalysisFailed(source string, reason string) {
	m.analysisFailures.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) AssessmentCreated() {
	m.assessmentsCreated.Inc()
}

// SetSubscribers records the number of connected event subscribers.
func (m *Metrics) SetSubscribers(n int) {
	m.wsClients.Set(float64(n))
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
