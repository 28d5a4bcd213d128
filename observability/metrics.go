package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fundtreasury"

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	treasuryMetricsOnce sync.Once
	treasuryRegistry    *TreasuryMetrics
)

// GatewayMetrics returns the lazily-initialised registry used to record HTTP
// gateway activity.
func GatewayMetrics() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// TreasuryMetrics wraps collectors tracking the ledger and the pool.
type TreasuryMetrics struct {
	applied        *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	noops          *prometheus.CounterVec
	commitLatency  prometheus.Histogram
	commitFailures prometheus.Counter
	balance        prometheus.Gauge
	released       prometheus.Gauge
	journalHeight  prometheus.Gauge
	events         *prometheus.CounterVec
}

// Treasury exposes the metrics registry for the treasury ledger.
func Treasury() *TreasuryMetrics {
	treasuryMetricsOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			applied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "ops_applied_total",
				Help:      "Count of committed treasury operations by kind.",
			}, []string{"op"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "ops_rejected_total",
				Help:      "Count of rejected treasury operations by kind and error code.",
			}, []string{"op", "code"}),
			noops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "ops_noop_total",
				Help:      "Count of accepted operations that changed no state and were not journaled.",
			}, []string{"op"}),
			commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "commit_duration_seconds",
				Help:      "Latency distribution for ledger batch commits.",
				Buckets:   prometheus.DefBuckets,
			}),
			commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "commit_failures_total",
				Help:      "Count of operations rolled back because the batch write failed.",
			}),
			balance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "balance",
				Help:      "Current pooled balance in base units.",
			}),
			released: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "released_total",
				Help:      "Sum of all tranches released in base units.",
			}),
			journalHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "journal_height",
				Help:      "Sequence number of the latest committed journal entry.",
			}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events published to subscribers by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			treasuryRegistry.applied,
			treasuryRegistry.rejected,
			treasuryRegistry.noops,
			treasuryRegistry.commitLatency,
			treasuryRegistry.commitFailures,
			treasuryRegistry.balance,
			treasuryRegistry.released,
			treasuryRegistry.journalHeight,
			treasuryRegistry.events,
		)
	})
	return treasuryRegistry
}

// RecordApplied counts a committed operation and records its commit latency.
func (m *TreasuryMetrics) RecordApplied(op string, sequence uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(labelOp(op)).Inc()
	m.commitLatency.Observe(d.Seconds())
	m.journalHeight.Set(float64(sequence))
}

// RecordRejected counts an operation the engine refused.
func (m *TreasuryMetrics) RecordRejected(op, code string) {
	if m == nil {
		return
	}
	if code = strings.TrimSpace(code); code == "" {
		code = "unspecified"
	}
	m.rejected.WithLabelValues(labelOp(op), code).Inc()
}

// RecordNoop counts an accepted operation that left the state untouched.
func (m *TreasuryMetrics) RecordNoop(op string) {
	if m == nil {
		return
	}
	m.noops.WithLabelValues(labelOp(op)).Inc()
}

// RecordCommitFailure counts a rolled back operation.
func (m *TreasuryMetrics) RecordCommitFailure() {
	if m == nil {
		return
	}
	m.commitFailures.Inc()
}

// RecordPool updates the pool gauges.
func (m *TreasuryMetrics) RecordPool(balance, released *uint256.Int) {
	if m == nil {
		return
	}
	m.balance.Set(amountToFloat(balance))
	m.released.Set(amountToFloat(released))
}

// RecordEvent increments the published event counter.
func (m *TreasuryMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

func labelOp(op string) string {
	trimmed := strings.TrimSpace(op)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func amountToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value.ToBig()).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
