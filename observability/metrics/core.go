package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics tracks the aggregation layer's refresh, cache, and fallback
// activity.
type CoreMetrics struct {
	refreshTicks      *prometheus.CounterVec
	refreshFailures   *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	readFailures      *prometheus.CounterVec
	droppedLogs       prometheus.Counter
	providerFallbacks prometheus.Counter
	submissions       *prometheus.CounterVec
	positionsAtRisk   prometheus.Gauge
}

var (
	coreOnce     sync.Once
	coreRegistry *CoreMetrics
)

// Core returns the process-wide aggregation metrics registry.
func Core() *CoreMetrics {
	coreOnce.Do(func() {
		coreRegistry = &CoreMetrics{
			refreshTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "folio_refresh_ticks_total",
				Help: "Count of polling refresh ticks by schedule key class.",
			}, []string{"key"}),
			refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "folio_refresh_failures_total",
				Help: "Count of refresh ticks that returned an error, by key class.",
			}, []string{"key"}),
			cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "folio_cache_hits_total",
				Help: "Count of cache hits by key class.",
			}, []string{"class"}),
			cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "folio_cache_misses_total",
				Help: "Count of cache misses by key class.",
			}, []string{"class"}),
			readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "folio_ledger_read_failures_total",
				Help: "Count of failed ledger reads by operation and failure kind.",
			}, []string{"op", "kind"}),
			droppedLogs: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "folio_dropped_logs_total",
				Help: "Count of raw logs dropped for failing to decode.",
			}),
			providerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "folio_provider_fallbacks_total",
				Help: "Count of advisor calls served from the static fallback dataset.",
			}),
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "folio_submissions_total",
				Help: "Count of user-triggered submissions by path and outcome.",
			}, []string{"path", "outcome"}),
			positionsAtRisk: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "folio_positions_at_risk",
				Help: "Number of positions classified as danger in the last scan.",
			}),
		}
		prometheus.MustRegister(
			coreRegistry.refreshTicks,
			coreRegistry.refreshFailures,
			coreRegistry.cacheHits,
			coreRegistry.cacheMisses,
			coreRegistry.readFailures,
			coreRegistry.droppedLogs,
			coreRegistry.providerFallbacks,
			coreRegistry.submissions,
			coreRegistry.positionsAtRisk,
		)
	})
	return coreRegistry
}

// ObserveRefreshTick records one scheduler tick for the key class.
func (m *CoreMetrics) ObserveRefreshTick(key string, failed bool) {
	if m == nil {
		return
	}
	if key == "" {
		key = "unknown"
	}
	m.refreshTicks.WithLabelValues(key).Inc()
	if failed {
		m.refreshFailures.WithLabelValues(key).Inc()
	}
}

// ObserveCache records a cache lookup outcome for the key class.
func (m *CoreMetrics) ObserveCache(class string, hit bool) {
	if m == nil {
		return
	}
	if class == "" {
		class = "unknown"
	}
	if hit {
		m.cacheHits.WithLabelValues(class).Inc()
		return
	}
	m.cacheMisses.WithLabelValues(class).Inc()
}

// ObserveReadFailure records one failed ledger read.
func (m *CoreMetrics) ObserveReadFailure(op, kind string) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(op, kind).Inc()
}

// ObserveDroppedLog records one undecodable raw log.
func (m *CoreMetrics) ObserveDroppedLog() {
	if m == nil {
		return
	}
	m.droppedLogs.Inc()
}

// ObserveProviderFallback records one advisor call served from fallback data.
func (m *CoreMetrics) ObserveProviderFallback() {
	if m == nil {
		return
	}
	m.providerFallbacks.Inc()
}

// ObserveSubmission records one user-triggered submission outcome.
func (m *CoreMetrics) ObserveSubmission(path, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(path, outcome).Inc()
}

// SetPositionsAtRisk records the size of the latest liquidation scan result.
func (m *CoreMetrics) SetPositionsAtRisk(n int) {
	if m == nil {
		return
	}
	m.positionsAtRisk.Set(float64(n))
}
