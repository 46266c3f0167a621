package promexporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	memcache "github.com/pior/mctext"
)

// Source is the subset of *memcache.Client read by the collector.
type Source interface {
	Addr() string
	Stats() memcache.ClientStats
	PoolStats() memcache.PoolStats
	CircuitBreaker() *memcache.CircuitBreaker
}

var (
	operationsDesc = prometheus.NewDesc(
		"memcache_client_operations_total",
		"Total number of operations by type",
		[]string{"server", "op"}, nil,
	)
	retrievalsDesc = prometheus.NewDesc(
		"memcache_client_retrieved_keys_total",
		"Keys requested by get and gets, by result",
		[]string{"server", "result"}, nil, // hit, miss
	)
	errorsDesc = prometheus.NewDesc(
		"memcache_client_errors_total",
		"Total number of failed operations",
		[]string{"server"}, nil,
	)
	poolConnectionsDesc = prometheus.NewDesc(
		"memcache_pool_connections",
		"Connection pool statistics",
		[]string{"server", "state"}, nil, // total, active, idle
	)
	poolCreatedDesc = prometheus.NewDesc(
		"memcache_pool_connections_created_total",
		"Total connections created",
		[]string{"server"}, nil,
	)
	poolDestroyedDesc = prometheus.NewDesc(
		"memcache_pool_connections_destroyed_total",
		"Total connections destroyed",
		[]string{"server"}, nil,
	)
	poolAcquiresDesc = prometheus.NewDesc(
		"memcache_pool_acquires_total",
		"Total connection acquire attempts",
		[]string{"server"}, nil,
	)
	poolAcquireWaitsDesc = prometheus.NewDesc(
		"memcache_pool_acquire_waits_total",
		"Acquires that waited for a connection",
		[]string{"server"}, nil,
	)
	poolAcquireWaitSecondsDesc = prometheus.NewDesc(
		"memcache_pool_acquire_wait_seconds_total",
		"Total time spent waiting for a connection",
		[]string{"server"}, nil,
	)
	poolAcquireErrorsDesc = prometheus.NewDesc(
		"memcache_pool_acquire_errors_total",
		"Total connection acquire errors",
		[]string{"server"}, nil,
	)
	circuitStateDesc = prometheus.NewDesc(
		"memcache_circuit_breaker_state",
		"Circuit breaker state (0=closed, 1=half-open, 2=open)",
		[]string{"server"}, nil,
	)
	circuitFailuresDesc = prometheus.NewDesc(
		"memcache_circuit_breaker_failures",
		"Circuit breaker failure counts in the current interval",
		[]string{"server", "type"}, nil, // total, consecutive
	)
)

// Collector exports the statistics of memcache clients. They are read on
// each scrape.
type Collector struct {
	sources []Source
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for the given clients.
func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- operationsDesc
	ch <- retrievalsDesc
	ch <- errorsDesc
	ch <- poolConnectionsDesc
	ch <- poolCreatedDesc
	ch <- poolDestroyedDesc
	ch <- poolAcquiresDesc
	ch <- poolAcquireWaitsDesc
	ch <- poolAcquireWaitSecondsDesc
	ch <- poolAcquireErrorsDesc
	ch <- circuitStateDesc
	ch <- circuitFailuresDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, source := range c.sources {
		collectClient(ch, source)
	}
}

func collectClient(ch chan<- prometheus.Metric, source Source) {
	server := source.Addr()

	counter := func(desc *prometheus.Desc, value uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value), append([]string{server}, labels...)...)
	}
	gauge := func(desc *prometheus.Desc, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, append([]string{server}, labels...)...)
	}

	stats := source.Stats()
	counter(operationsDesc, stats.Stores, "store")
	counter(operationsDesc, stats.Deletes, "delete")
	counter(operationsDesc, stats.Touches, "touch")
	counter(operationsDesc, stats.Arithmetic, "arithmetic")
	counter(retrievalsDesc, stats.GetHits, "hit")
	counter(retrievalsDesc, stats.Gets-stats.GetHits, "miss")
	counter(errorsDesc, stats.Errors)

	pool := source.PoolStats()
	gauge(poolConnectionsDesc, float64(pool.TotalConns), "total")
	gauge(poolConnectionsDesc, float64(pool.ActiveConns), "active")
	gauge(poolConnectionsDesc, float64(pool.IdleConns), "idle")
	counter(poolCreatedDesc, pool.CreatedConns)
	counter(poolDestroyedDesc, pool.DestroyedConns)
	counter(poolAcquiresDesc, pool.AcquireCount)
	counter(poolAcquireWaitsDesc, pool.AcquireWaitCount)
	ch <- prometheus.MustNewConstMetric(poolAcquireWaitSecondsDesc, prometheus.CounterValue, float64(pool.AcquireWaitTimeNs)/1e9, server)
	counter(poolAcquireErrorsDesc, pool.AcquireErrors)

	if cb := source.CircuitBreaker(); cb != nil {
		gauge(circuitStateDesc, breakerState(cb.State()))
		counts := cb.Counts()
		gauge(circuitFailuresDesc, float64(counts.TotalFailures), "total")
		gauge(circuitFailuresDesc, float64(counts.ConsecutiveFailures), "consecutive")
	}
}

func breakerState(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
