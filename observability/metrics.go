package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"assetpool/core/events"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics

	loanMetricsOnce sync.Once
	loanRegistry    *LoanMetrics

	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP module
// activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "assetpool",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "quota_exceeded".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// PoolMetrics tracks reserves and swap outcomes.
type PoolMetrics struct {
	swaps    *prometheus.CounterVec
	volume   *prometheus.CounterVec
	reserves *prometheus.GaugeVec
	supply   prometheus.Gauge
}

// Pool returns the pool metrics registry.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "pool",
				Name:      "swaps_total",
				Help:      "Swap attempts segmented by direction and outcome.",
			}, []string{"direction", "outcome"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "pool",
				Name:      "swap_volume_total",
				Help:      "Units swapped into the pool per asset.",
			}, []string{"asset"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "assetpool",
				Subsystem: "pool",
				Name:      "reserve",
				Help:      "Current pool reserve per asset.",
			}, []string{"asset"}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "assetpool",
				Subsystem: "pool",
				Name:      "share_supply",
				Help:      "Outstanding liquidity shares.",
			}),
		}
		prometheus.MustRegister(poolRegistry.swaps, poolRegistry.volume, poolRegistry.reserves, poolRegistry.supply)
	})
	return poolRegistry
}

// RecordSwap counts a swap attempt. A nil err marks success.
func (m *PoolMetrics) RecordSwap(direction, assetIn string, amountIn uint64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "rejected"
	}
	m.swaps.WithLabelValues(direction, outcome).Inc()
	if err == nil {
		m.volume.WithLabelValues(labelAsset(assetIn)).Add(float64(amountIn))
	}
}

// SetReserves publishes the reserve gauges.
func (m *PoolMetrics) SetReserves(assetA string, reserveA uint64, assetB string, reserveB uint64, supply uint64) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues(labelAsset(assetA)).Set(float64(reserveA))
	m.reserves.WithLabelValues(labelAsset(assetB)).Set(float64(reserveB))
	m.supply.Set(float64(supply))
}

// OracleMetrics tracks the published price and feeder health.
type OracleMetrics struct {
	price     *prometheus.GaugeVec
	age       *prometheus.GaugeVec
	feeds     *prometheus.CounterVec
	publishes *prometheus.CounterVec
}

// Oracle returns the oracle metrics registry.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "assetpool",
				Subsystem: "oracle",
				Name:      "price",
				Help:      "Last published price as a fixed-point integer.",
			}, []string{"asset"}),
			age: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "assetpool",
				Subsystem: "oracle",
				Name:      "price_age_seconds",
				Help:      "Age of the published price.",
			}, []string{"asset"}),
			feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "oracle",
				Name:      "source_fetches_total",
				Help:      "Feeder source fetches segmented by source and outcome.",
			}, []string{"source", "outcome"}),
			publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "oracle",
				Name:      "publishes_total",
				Help:      "Feeder price publications segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(oracleRegistry.price, oracleRegistry.age, oracleRegistry.feeds, oracleRegistry.publishes)
	})
	return oracleRegistry
}

// RecordPrice publishes the price gauge.
func (m *OracleMetrics) RecordPrice(asset string, price uint64) {
	if m == nil {
		return
	}
	m.price.WithLabelValues(labelAsset(asset)).Set(float64(price))
}

// RecordFreshness publishes the age of the current price.
func (m *OracleMetrics) RecordFreshness(asset string, age time.Duration) {
	if m == nil {
		return
	}
	m.age.WithLabelValues(labelAsset(asset)).Set(age.Seconds())
}

// RecordFetch counts a source fetch.
func (m *OracleMetrics) RecordFetch(source string, err error) {
	if m == nil {
		return
	}
	m.feeds.WithLabelValues(strings.TrimSpace(source), outcomeLabel(err)).Inc()
}

// RecordPublish counts a feeder publication.
func (m *OracleMetrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(outcomeLabel(err)).Inc()
}

// LoanMetrics tracks the loan book.
type LoanMetrics struct {
	active *prometheus.GaugeVec
	supply prometheus.Gauge
}

// Loans returns the loan metrics registry.
func Loans() *LoanMetrics {
	loanMetricsOnce.Do(func() {
		loanRegistry = &LoanMetrics{
			active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "assetpool",
				Subsystem: "loans",
				Name:      "active",
				Help:      "Active loans and their aggregate amounts.",
			}, []string{"measure"}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "assetpool",
				Subsystem: "loans",
				Name:      "pegged_supply",
				Help:      "Outstanding pegged units.",
			}),
		}
		prometheus.MustRegister(loanRegistry.active, loanRegistry.supply)
	})
	return loanRegistry
}

// SetBook publishes the loan book gauges.
func (m *LoanMetrics) SetBook(count int, principal, collateral, supply uint64) {
	if m == nil {
		return
	}
	m.active.WithLabelValues("count").Set(float64(count))
	m.active.WithLabelValues("principal").Set(float64(principal))
	m.active.WithLabelValues("collateral").Set(float64(collateral))
	m.supply.Set(float64(supply))
}

type eventMetrics struct {
	events *prometheus.CounterVec
}

// Events returns the registry counting emitted core events. It satisfies
// events.Emitter so it can sit in an emitter fan-out.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "assetpool",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of core events segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(eventRegistry.events)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
}

func labelAsset(asset string) string {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
