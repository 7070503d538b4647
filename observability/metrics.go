package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
	staleRounds  prometheus.Counter
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// LedgerMetrics returns the lazily-initialised metrics registry used to record
// ledger RPC activity.
func LedgerMetrics() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xvfi",
				Subsystem: "ledger",
				Name:      "requests_total",
				Help:      "Total JSON-RPC ledger requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xvfi",
				Subsystem: "ledger",
				Name:      "errors_total",
				Help:      "Total JSON-RPC ledger errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "xvfi",
				Subsystem: "ledger",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC ledger handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "xvfi",
				Subsystem: "ledger",
				Name:      "liquidations_total",
				Help:      "Count of successful liquidation operations.",
			}),
			staleRounds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "xvfi",
				Subsystem: "ledger",
				Name:      "stale_rounds_total",
				Help:      "Count of operations rejected because the oracle round was stale.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.requests,
			ledgerRegistry.errors,
			ledgerRegistry.latency,
			ledgerRegistry.liquidations,
			ledgerRegistry.staleRounds,
		)
	})
	return ledgerRegistry
}

// Observe records the outcome of a ledger request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *ledgerMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordLiquidation increments the liquidation counter.
func (m *ledgerMetrics) RecordLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// RecordStaleRound increments the stale oracle round counter.
func (m *ledgerMetrics) RecordStaleRound() {
	if m == nil {
		return
	}
	m.staleRounds.Inc()
}
