package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the checkout counters. A nil *Metrics records nothing.
type Metrics struct {
	Checkouts        *prometheus.CounterVec
	Settlements      *prometheus.CounterVec
	ProofUploads     *prometheus.CounterVec
	CheckoutDuration prometheus.Histogram
	PointsDeducted   prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_total",
				Help: "Total number of checkout attempts",
			},
			[]string{"outcome"},
		),
		Settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_total",
				Help: "Total number of settlement attempts",
			},
			[]string{"decision", "outcome"},
		),
		ProofUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_proof_uploads_total",
				Help: "Total number of payment proof uploads",
			},
			[]string{"outcome"},
		),
		CheckoutDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_duration_seconds",
				Help:    "Duration of checkout calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		PointsDeducted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "points_deducted_total",
				Help: "Total loyalty points spent at checkout",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveCheckout(outcome string, took time.Duration, points int64) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
	m.CheckoutDuration.Observe(took.Seconds())
	if points > 0 {
		m.PointsDeducted.Add(float64(points))
	}
}

func (m *Metrics) ObserveSettlement(decision, outcome string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(decision, outcome).Inc()
}

func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.ProofUploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Outcome collapses an error into a low-cardinality label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
