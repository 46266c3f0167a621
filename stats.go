package memcache

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a connection pool.
//
// For Prometheus integration, see the promexporter package:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
type PoolStats struct {
	// Lifetime counters
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges
	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats contains statistics about client operations.
//
// For Prometheus integration, expose these as:
//   - Counters: Gets, Stores, Deletes, Touches, Arithmetic, Errors
//   - Counter: GetHits (derive hit rate as GetHits/Gets)
type ClientStats struct {
	Gets       uint64 // Keys requested by retrieval operations
	GetHits    uint64 // Keys found by retrieval operations
	Stores     uint64 // Storage operations (set, add, replace, append, prepend, cas)
	Deletes    uint64 // Delete operations
	Touches    uint64 // Touch operations
	Arithmetic uint64 // Increment and decrement operations
	Errors     uint64 // Total errors across all operations
}

// poolStatsCollector provides internal methods for updating pool counters.
// Gauges are computed by the pool itself.
type poolStatsCollector struct {
	acquireCount      atomic.Uint64
	acquireWaitCount  atomic.Uint64
	createdConns      atomic.Uint64
	destroyedConns    atomic.Uint64
	acquireErrors     atomic.Uint64
	acquireWaitTimeNs atomic.Uint64
}

func (c *poolStatsCollector) recordAcquire() {
	c.acquireCount.Add(1)
}

func (c *poolStatsCollector) recordAcquireWait(duration time.Duration) {
	c.acquireWaitCount.Add(1)
	c.acquireWaitTimeNs.Add(uint64(duration.Nanoseconds()))
}

func (c *poolStatsCollector) recordCreate() {
	c.createdConns.Add(1)
}

func (c *poolStatsCollector) recordDestroy() {
	c.destroyedConns.Add(1)
}

func (c *poolStatsCollector) recordAcquireError() {
	c.acquireErrors.Add(1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		AcquireCount:      c.acquireCount.Load(),
		AcquireWaitCount:  c.acquireWaitCount.Load(),
		CreatedConns:      c.createdConns.Load(),
		DestroyedConns:    c.destroyedConns.Load(),
		AcquireErrors:     c.acquireErrors.Load(),
		AcquireWaitTimeNs: c.acquireWaitTimeNs.Load(),
	}
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	gets       atomic.Uint64
	getHits    atomic.Uint64
	stores     atomic.Uint64
	deletes    atomic.Uint64
	touches    atomic.Uint64
	arithmetic atomic.Uint64
	errors     atomic.Uint64
}

func (c *clientStatsCollector) recordGet(requested, found int) {
	c.gets.Add(uint64(requested))
	c.getHits.Add(uint64(found))
}

func (c *clientStatsCollector) recordStore() {
	c.stores.Add(1)
}

func (c *clientStatsCollector) recordDelete() {
	c.deletes.Add(1)
}

func (c *clientStatsCollector) recordTouch() {
	c.touches.Add(1)
}

func (c *clientStatsCollector) recordArithmetic() {
	c.arithmetic.Add(1)
}

func (c *clientStatsCollector) recordError() {
	c.errors.Add(1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:       c.gets.Load(),
		GetHits:    c.getHits.Load(),
		Stores:     c.stores.Load(),
		Deletes:    c.deletes.Load(),
		Touches:    c.touches.Load(),
		Arithmetic: c.arithmetic.Load(),
		Errors:     c.errors.Load(),
	}
}
