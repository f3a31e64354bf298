package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiMetricsOnce sync.Once
	apiRegistry    *APIMetrics

	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// APIMetrics records HTTP activity of the settlement API.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// NewAPIMetrics builds the API collectors and registers them with reg.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "burnrouter",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests segmented by route and outcome.",
		}, []string{"route", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "burnrouter",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Total API errors segmented by route and status code.",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "burnrouter",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for API handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "burnrouter",
			Subsystem: "api",
			Name:      "throttles_total",
			Help:      "Count of API requests rejected due to throttling policies.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.requests, m.errors, m.latency, m.throttles)
	return m
}

// API returns the lazily-initialised API metrics on the default registry.
func API() *APIMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = NewAPIMetrics(prometheus.DefaultRegisterer)
	})
	return apiRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *APIMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *APIMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// SettlementMetrics tracks batch and item outcomes of the settlement engine.
type SettlementMetrics struct {
	items     *prometheus.CounterVec
	batches   *prometheus.CounterVec
	batchSize *prometheus.HistogramVec
	referrals prometheus.Counter
}

// NewSettlementMetrics builds the engine collectors and registers them with reg.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	m := &SettlementMetrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "burnrouter",
			Subsystem: "settlement",
			Name:      "items_total",
			Help:      "Batch items processed segmented by status and failure reason.",
		}, []string{"status", "reason"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "burnrouter",
			Subsystem: "settlement",
			Name:      "batches_total",
			Help:      "Settlement calls segmented by payout mode and result.",
		}, []string{"mode", "result"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "burnrouter",
			Subsystem: "settlement",
			Name:      "batch_items",
			Help:      "Distribution of items per settlement call.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"mode"}),
		referrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "burnrouter",
			Subsystem: "settlement",
			Name:      "referral_payments_total",
			Help:      "Referrer fee payouts made by settlements.",
		}),
	}
	reg.MustRegister(m.items, m.batches, m.batchSize, m.referrals)
	return m
}

// Settlement returns the singleton engine metrics on the default registry.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = NewSettlementMetrics(prometheus.DefaultRegisterer)
	})
	return settlementRegistry
}

func (m *SettlementMetrics) ObserveItem(status, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.items.WithLabelValues(status, reason).Inc()
}

func (m *SettlementMetrics) ObserveBatch(mode, result string, items int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(mode, result).Inc()
	m.batchSize.WithLabelValues(mode).Observe(float64(items))
}

func (m *SettlementMetrics) ObserveReferralPaid() {
	if m == nil {
		return
	}
	m.referrals.Inc()
}
