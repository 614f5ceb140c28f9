// Package metrics defines the Prometheus collectors for ingestion, bank
// synchronization, generation and attempts, plus HTTP instrumentation.
//
// All recording methods are safe on a nil *Metrics, so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector exported by the service.
type Metrics struct {
	registry prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	generated        *prometheus.CounterVec
	inserted         *prometheus.CounterVec
	duplicates       *prometheus.CounterVec
	fallbackSections prometheus.Counter
	generationErrors *prometheus.CounterVec
	syncDuration     prometheus.Histogram
	attempts         *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examino_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "examino_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
		}, []string{"method", "endpoint"}),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examino_questions_generated_total",
			Help: "Question candidates produced, by source",
		}, []string{"source"}),
		inserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examino_bank_inserted_total",
			Help: "Questions inserted into the bank, by subject",
		}, []string{"subject"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examino_bank_duplicates_total",
			Help: "Candidates skipped as duplicates, by subject",
		}, []string{"subject"}),
		fallbackSections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "examino_fallback_sections_total",
			Help: "Sections whose questions came from the local extractor",
		}),
		generationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examino_generation_errors_total",
			Help: "Generator failures, by reason",
		}, []string{"reason"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "examino_bank_sync_duration_seconds",
			Help:    "Duration of bank synchronization including lock wait",
			Buckets: prometheus.DefBuckets,
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examino_attempts_total",
			Help: "Recorded attempts, by correctness",
		}, []string{"correct"}),
	}

	reg.MustRegister(
		m.requests, m.requestDuration,
		m.generated, m.inserted, m.duplicates, m.fallbackSections,
		m.generationErrors, m.syncDuration, m.attempts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Generated counts candidates from source ("ai" or "fallback").
func (m *Metrics) Generated(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.generated.WithLabelValues(source).Add(float64(n))
}

// Synced records one bank synchronization.
func (m *Metrics) Synced(subject string, inserted, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	if inserted > 0 {
		m.inserted.WithLabelValues(subject).Add(float64(inserted))
	}
	if skipped > 0 {
		m.duplicates.WithLabelValues(subject).Add(float64(skipped))
	}
	m.syncDuration.Observe(d.Seconds())
}

// FallbackSection counts a section served by the local extractor.
func (m *Metrics) FallbackSection() {
	if m == nil {
		return
	}
	m.fallbackSections.Inc()
}

// GenerationError counts a generator failure.
func (m *Metrics) GenerationError(reason string) {
	if m == nil {
		return
	}
	m.generationErrors.WithLabelValues(reason).Inc()
}

// Attempt counts a recorded attempt.
func (m *Metrics) Attempt(correct bool) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(sw.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
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

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
