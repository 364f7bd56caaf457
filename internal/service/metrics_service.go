package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation on a private registry.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	tierAttempts     *prometheus.CounterVec
	tierDuration     *prometheus.HistogramVec
	pipelineDuration *prometheus.HistogramVec
	jobsTotal        *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	backendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Duration of course backend calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	tierAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_tier_attempts_total",
		Help: "Export strategy attempts by outcome",
	}, []string{"tier", "outcome"})

	tierDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "export_tier_duration_seconds",
		Help:    "Time spent in each export strategy",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 6, 10, 30},
	}, []string{"tier"})

	pipelineDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "export_pipeline_duration_seconds",
		Help:    "End to end export duration labelled by the tier that delivered",
		Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"tier"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Async export jobs by final status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, backendDuration, tierAttempts, tierDuration, pipelineDuration, jobsTotal, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		backendDuration:  backendDuration,
		tierAttempts:     tierAttempts,
		tierDuration:     tierDuration,
		pipelineDuration: pipelineDuration,
		jobsTotal:        jobsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveBackendCall records a course backend request. Status 0 means transport failure.
func (m *MetricsService) ObserveBackendCall(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveTierAttempt counts one export strategy attempt.
func (m *MetricsService) ObserveTierAttempt(tier string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.tierAttempts.WithLabelValues(tier, outcome).Inc()
	m.tierDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObservePipeline records a finished export run; tier is empty when every strategy failed.
func (m *MetricsService) ObservePipeline(tier string, duration time.Duration) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "none"
	}
	m.pipelineDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveJob counts an async job reaching a final status.
func (m *MetricsService) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}
