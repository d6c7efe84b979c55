// Package metrics exposes Prometheus collectors for the ingestion pipeline
// and the query API.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record stages counted by bizdir_records_total.
const (
	StageExtracted = "extracted"
	StageAccepted  = "accepted"
	StageDropped   = "dropped"
	StageDuplicate = "duplicate"
	StageInserted  = "inserted"
)

// Metrics owns a private registry so tests and multiple pipelines never
// collide on global collectors.
type Metrics struct {
	registry *prometheus.Registry

	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	records       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		fetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizdir_fetch_attempts_total",
				Help: "Fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizdir_fetch_duration_seconds",
				Help:    "Latency of individual fetch attempts, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizdir_records_total",
				Help: "Records seen by the pipeline, labeled by stage.",
			},
			[]string{"stage"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizdir_pipeline_runs_total",
				Help: "Pipeline runs, labeled by final status.",
			},
			[]string{"status"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizdir_http_requests_total",
				Help: "API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizdir_http_request_duration_seconds",
				Help:    "API request latency, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SanitizeSite reduces a URL to a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch implements crawler.FetchObserver.
func (m *Metrics) ObserveFetch(rawURL, outcome string, d time.Duration) {
	site := SanitizeSite(rawURL)
	m.fetchAttempts.WithLabelValues(site, outcome).Inc()
	m.fetchDuration.WithLabelValues(site).Observe(d.Seconds())
}

// AddRecords counts n records at stage.
func (m *Metrics) AddRecords(stage string, n int) {
	if n <= 0 {
		return
	}
	m.records.WithLabelValues(stage).Add(float64(n))
}

// ObserveRun counts a finished pipeline run.
func (m *Metrics) ObserveRun(status string) {
	m.runs.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records one API request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Middleware is a chi middleware that records request metrics by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
