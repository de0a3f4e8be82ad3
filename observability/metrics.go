package observability

import (
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics aggregates engine activity from emitted events: operation
// counters, moved amounts, and liquidation outcomes.
type VaultMetrics struct {
	operations    *prometheus.CounterVec
	volume        *prometheus.CounterVec
	liquidations  *prometheus.CounterVec
	socialisedWei prometheus.Counter
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle prometheus.Counter
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Vault returns the lazily-initialised engine metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Committed engine operations segmented by operation.",
			}, []string{"operation"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "volume_total",
				Help:      "Asset volume moved through the pool segmented by operation.",
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Completed liquidations segmented by whether reserves were drawn.",
			}, []string{"reserve_draw"}),
			socialisedWei: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "engine",
				Name:      "socialised_loss_total",
				Help:      "Cumulative shortfall socialised across lenders.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.volume,
			vaultRegistry.liquidations,
			vaultRegistry.socialisedWei,
		)
	})
	return vaultRegistry
}

// RecordOperation counts one committed operation and its asset volume.
func (m *VaultMetrics) RecordOperation(operation string, amount *big.Int) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
	if amount != nil && amount.Sign() > 0 {
		m.volume.WithLabelValues(operation).Add(gaugeValue(amount))
	}
}

// RecordLiquidation counts a completed liquidation and any socialised loss.
func (m *VaultMetrics) RecordLiquidation(reserveCost, missing *big.Int) {
	if m == nil {
		return
	}
	draw := "false"
	if reserveCost != nil && reserveCost.Sign() > 0 {
		draw = "true"
	}
	m.liquidations.WithLabelValues(draw).Inc()
	if missing != nil && missing.Sign() > 0 {
		m.socialisedWei.Add(gaugeValue(missing))
	}
}

func gaugeValue(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return math.MaxFloat64
	}
	return value
}

// HTTP returns the lazily-initialised HTTP server metrics registry.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route, method, and status.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendvault",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttle: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendvault",
				Subsystem: "http",
				Name:      "throttled_total",
				Help:      "Requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttle)
	})
	return httpRegistry
}

func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttle.Inc()
}
