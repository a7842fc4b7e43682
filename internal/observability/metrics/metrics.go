// Package metrics provides Prometheus instrumentation for paygate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Payment domain metrics
	verifyTotal       *prometheus.CounterVec
	settleTotal       *prometheus.CounterVec
	challengeTotal    *prometheus.CounterVec
	settleDuration    *prometheus.HistogramVec
	invoiceSweepTotal prometheus.Counter
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Payment verification counter
	verifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_verify_total",
			Help: "Total number of payment verification requests",
		},
		[]string{"scheme", "outcome"},
	)

	// Payment settlement counter
	settleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_settle_total",
			Help: "Total number of payment settlement requests",
		},
		[]string{"scheme", "outcome"},
	)

	// Settlements wait for on-chain confirmation, so they run much longer
	// than verifications; buckets reach the 30s settlement timeout.
	settleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "x402_settle_duration_seconds",
			Help:    "Payment settlement latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"scheme"},
	)

	// Challenge counter
	challengeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_challenge_total",
			Help: "Total number of 402 payment challenges issued",
		},
		[]string{"network", "token"},
	)

	// Invoice sweep counter
	invoiceSweepTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "x402_invoices_expired_total",
			Help: "Total number of invoices expired by the sweeper",
		},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
