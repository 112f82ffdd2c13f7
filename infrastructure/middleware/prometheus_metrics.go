// Package middleware provides the Prometheus metrics collector and the HTTP
// middleware that feeds it.
package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/gavel-arena/internal/ports"
)

// Metric names understood by PrometheusMetrics. Names not listed fall
// through to the generic operation counter and state gauge.
const (
	MetricLLMRequests      = "llm_requests_total"
	MetricLLMTokens        = "llm_tokens_total"
	MetricLLMLatency       = "llm_latency_seconds"
	MetricJudgeVerdicts    = ports.MetricJudgeVerdicts
	MetricSubmissions      = ports.MetricSubmissions
	MetricPersistRetries   = ports.MetricPersistRetries
	MetricHTTPRequests     = "arena_http_requests_total"
	MetricHTTPDuration     = "arena_http_request_duration_seconds"
	MetricOnline           = ports.MetricOnline
	MetricOperationLatency = "arena_operation_duration_seconds"
)

// PrometheusMetrics implements ports.MetricsCollector on its own registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	llmRequests    *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	judgeVerdicts  *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	persistRetries *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	online         prometheus.Gauge
	latency        *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	state          *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collector with a fresh registry that
// also carries the Go runtime and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricLLMRequests,
			Help: "LLM requests by provider, model and outcome.",
		}, []string{"provider", "model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricLLMTokens,
			Help: "Tokens exchanged with the LLM provider.",
		}, []string{"provider", "model", "token_type"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricLLMLatency,
			Help:    "LLM request latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"provider", "status"}),
		judgeVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricJudgeVerdicts,
			Help: "Judge verdicts by round and failure kind; failure is empty on success.",
		}, []string{"round", "failure"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSubmissions,
			Help: "Submission requests by round and outcome.",
		}, []string{"round", "outcome"}),
		persistRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPersistRetries,
			Help: "Retried participant saves.",
		}, []string{"operation"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequests,
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPDuration,
			Help:    "HTTP request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Name: MetricOnline,
			Help: "Participants with a heartbeat inside the presence window.",
		}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricOperationLatency,
			Help:    "Duration of application operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_operations_total",
			Help: "Counters without a dedicated metric.",
		}, []string{"operation"}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_state",
			Help: "Gauges without a dedicated metric.",
		}, []string{"metric"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// RecordLatency observes duration for operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter adds value to the counter named metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricLLMRequests:
		pm.llmRequests.WithLabelValues(values(labels, "provider", "model", "status")...).Add(value)
	case MetricLLMTokens:
		pm.llmTokens.WithLabelValues(values(labels, "provider", "model", "token_type")...).Add(value)
	case MetricJudgeVerdicts:
		pm.judgeVerdicts.WithLabelValues(labels["round"], labels["failure"]).Add(value)
	case MetricSubmissions:
		pm.submissions.WithLabelValues(values(labels, "round", "outcome")...).Add(value)
	case MetricPersistRetries:
		pm.persistRetries.WithLabelValues(values(labels, "operation")...).Add(value)
	case MetricHTTPRequests:
		pm.httpRequests.WithLabelValues(values(labels, "route", "method", "code")...).Add(value)
	default:
		pm.operations.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	if metric == MetricOnline {
		pm.online.Set(value)
		return
	}
	pm.state.WithLabelValues(metric).Set(value)
}

// RecordHistogram observes value in the histogram named metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricLLMLatency:
		pm.llmLatency.WithLabelValues(values(labels, "provider", "status")...).Observe(value)
	case MetricHTTPDuration:
		pm.httpDuration.WithLabelValues(values(labels, "route", "method")...).Observe(value)
	default:
		pm.latency.WithLabelValues(metric).Observe(value)
	}
}

// values picks label values in order, substituting "unknown" for missing
// or empty ones.
func values(labels map[string]string, keys ...string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		v := labels[k]
		if v == "" {
			v = "unknown"
		}
		out[i] = v
	}
	return out
}
