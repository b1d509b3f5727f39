package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sdkdoctor proxy.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	ProxyOverheadMs   *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	FilterActionTotal *prometheus.CounterVec
	RedactionTotal    *prometheus.CounterVec
	RateLimitHitTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdkdoctor_request_total",
			Help: "Total number of requests processed by the proxy.",
		}, []string{"org", "team", "model", "provider", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdkdoctor_request_duration_ms",
			Help:    "Total request duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "provider"}),

		ProxyOverheadMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdkdoctor_proxy_overhead_ms",
			Help:    "Proxy processing overhead in milliseconds (excluding provider latency).",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"org"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdkdoctor_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"org", "team", "model", "direction"}),

		FilterActionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdkdoctor_filter_action_total",
			Help: "Total filter actions taken.",
		}, []string{"filter", "action"}),

		RedactionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdkdoctor_redaction_total",
			Help: "Total spans masked, by trust boundary and secret category.",
		}, []string{"boundary", "category"}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sdkdoctor_rate_limit_hit_total",
			Help: "Total requests rejected by rate limiting or quota.",
		}, []string{"scope", "team"}),
	}
}

// RecordRateLimitHit records a rejected request. Scope is "rpm" or "quota".
func (m *Metrics) RecordRateLimitHit(scope, team string) {
	m.RateLimitHitTotal.WithLabelValues(scope, team).Inc()
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Org, labels.Team, labels.Model, labels.Provider, labels.Status,
	).Inc()

	m.RequestDurationMs.WithLabelValues(
		labels.Model, labels.Provider,
	).Observe(labels.DurationMs)

	m.ProxyOverheadMs.WithLabelValues(
		labels.Org,
	).Observe(labels.OverheadMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Org, labels.Team, labels.Model, "prompt",
		).Add(float64(labels.PromptTokens))
	}

	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(
			labels.Org, labels.Team, labels.Model, "completion",
		).Add(float64(labels.CompletionTokens))
	}
}

// RecordFilterAction records a filter action metric.
func (m *Metrics) RecordFilterAction(filter, action string) {
	m.FilterActionTotal.WithLabelValues(filter, action).Inc()
}

// RecordRedactions records masked-span counts for one scan pass. A non-empty
// manifest at the "server" boundary means a secret slipped past the client
// gate, which is worth alerting on.
func (m *Metrics) RecordRedactions(boundary string, counts map[string]int) {
	for category, n := range counts {
		if n > 0 {
			m.RedactionTotal.WithLabelValues(boundary, category).Add(float64(n))
		}
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Org              string
	Team             string
	Model            string
	Provider         string
	Status           string
	DurationMs       float64
	OverheadMs       float64
	PromptTokens     int
	CompletionTokens int
}
