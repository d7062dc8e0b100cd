package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics (report/metrics server)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Pipeline metrics
	RunsTotal          *prometheus.CounterVec
	TestsExecutedTotal *prometheus.CounterVec
	FallbackAttempts   *prometheus.CounterVec
	CrawlPages         prometheus.Histogram
	CrawlDuration      prometheus.Histogram
	CoverageScore      *prometheus.GaugeVec
	RegressionsFound   prometheus.Counter

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec
	LLMCacheHits       prometheus.Counter
	LLMCacheMisses     prometheus.Counter
}

// NewMetrics creates a new metrics instance with all Prometheus metrics registered
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "webprobe"
	}

	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		TestsExecutedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tests_executed_total",
				Help:      "Total number of tests executed",
			},
			[]string{"status", "category"},
		),
		FallbackAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_attempts_total",
				Help:      "Total number of AI fallback consultations",
			},
			[]string{"decision"},
		),
		CrawlPages: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "crawl_pages",
				Help:      "Number of pages crawled per run",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		CrawlDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "crawl_duration_seconds",
				Help:      "Crawl duration in seconds",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
			},
		),
		CoverageScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "coverage_score",
				Help:      "Coverage score per category (0-1)",
			},
			[]string{"category"},
		),
		RegressionsFound: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regressions_found_total",
				Help:      "Total number of pass-to-fail regressions detected",
			},
		),

		LLMRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of LLM API requests",
			},
			[]string{"model", "purpose", "status"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "LLM API request duration in seconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"model", "purpose"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_used_total",
				Help:      "Total number of tokens used",
			},
			[]string{"model", "type"}, // type: input, output
		),
		LLMCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_cache_hits_total",
				Help:      "Total number of LLM cache hits",
			},
		),
		LLMCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_cache_misses_total",
				Help:      "Total number of LLM cache misses",
			},
		),
	}

	return m
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMRequest records LLM API metrics
func (m *Metrics) RecordLLMRequest(model, purpose, status string, duration time.Duration, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(model, purpose, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model, purpose).Observe(duration.Seconds())
	m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordRun records one pipeline run
func (m *Metrics) RecordRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordTestExecution records test outcome counts
func (m *Metrics) RecordTestExecution(status, category string, count int) {
	m.TestsExecutedTotal.WithLabelValues(status, category).Add(float64(count))
}

// RecordFallback records one AI fallback consultation
func (m *Metrics) RecordFallback(decision string) {
	m.FallbackAttempts.WithLabelValues(decision).Inc()
}

// RecordCrawl records crawl metrics
func (m *Metrics) RecordCrawl(pagesCrawled int, duration time.Duration) {
	m.CrawlPages.Observe(float64(pagesCrawled))
	m.CrawlDuration.Observe(duration.Seconds())
}

// RecordCoverage records per-category coverage scores
func (m *Metrics) RecordCoverage(scores map[string]float64) {
	for category, score := range scores {
		m.CoverageScore.WithLabelValues(category).Set(score)
	}
}

// RecordRegressions adds to the regression counter
func (m *Metrics) RecordRegressions(count int) {
	m.RegressionsFound.Add(float64(count))
}

// HTTPMiddleware returns middleware for recording HTTP metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		m.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
