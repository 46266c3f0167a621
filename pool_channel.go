package memcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pior/mctext/internal/coarsetime"
)

// NewChannelPool creates the default connection pool.
//
// Capacity is enforced by a semaphore of MaxSize slots: every connection on
// loan holds one slot, so Acquire blocks once MaxSize connections are in use.
// A new connection is opened only when no idle connection exists, which keeps
// idle + in use connections <= MaxSize.
func NewChannelPool(constructor ConnConstructor, config PoolConfig) (Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	p := &channelPool{
		constructor: constructor,
		maxSize:     config.MaxSize,
		slots:       semaphore.NewWeighted(int64(config.MaxSize)),
		idle:        make([]*channelResource, 0, config.MaxSize),
		loaned:      make(map[*channelResource]struct{}),
	}

	for range config.MinSize {
		conn, err := constructor(context.Background())
		if err != nil {
			p.Close()
			return nil, err
		}
		now := coarsetime.Now()
		p.idle = append(p.idle, &channelResource{
			conn:         conn,
			pool:         p,
			creationTime: now,
			lastUsedTime: now,
		})
		p.size++
		p.stats.recordCreate()
	}

	return p, nil
}

// channelResource implements Resource for channel pool.
type channelResource struct {
	conn         *Connection
	pool         *channelPool
	generation   uint64
	creationTime time.Time
	lastUsedTime time.Time
}

func (r *channelResource) Value() *Connection {
	return r.conn
}

func (r *channelResource) Release() {
	r.pool.put(r, true)
}

func (r *channelResource) ReleaseUnused() {
	// Don't update lastUsedTime for health checks
	r.pool.put(r, false)
}

func (r *channelResource) Destroy() {
	r.pool.destroy(r)
}

func (r *channelResource) CreationTime() time.Time {
	return r.creationTime
}

func (r *channelResource) IdleDuration() time.Duration {
	return time.Since(r.lastUsedTime)
}

type channelPool struct {
	constructor ConnConstructor
	maxSize     int32
	slots       *semaphore.Weighted

	mu         sync.Mutex
	idle       []*channelResource
	loaned     map[*channelResource]struct{}
	size       int32
	generation uint64 // incremented by Clear
	closed     bool

	stats poolStatsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	if !p.slots.TryAcquire(1) {
		// Pool is exhausted, wait for a connection to be released
		waitStart := coarsetime.Now()
		if err := p.slots.Acquire(ctx, 1); err != nil {
			p.stats.recordAcquireError()
			return nil, err
		}
		p.stats.recordAcquireWait(time.Since(waitStart))
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots.Release(1)
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}

	// Most recently used first, so surplus connections age out
	if n := len(p.idle); n > 0 {
		res := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.loaned[res] = struct{}{}
		p.mu.Unlock()
		return res, nil
	}

	p.size++
	generation := p.generation
	p.mu.Unlock()

	conn, err := p.constructor(ctx)
	if err != nil {
		p.mu.Lock()
		if generation == p.generation {
			p.size--
		}
		p.mu.Unlock()
		p.slots.Release(1)
		p.stats.recordAcquireError()
		return nil, err
	}

	now := coarsetime.Now()
	res := &channelResource{
		conn:         conn,
		pool:         p,
		generation:   generation,
		creationTime: now,
		lastUsedTime: now,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		p.slots.Release(1)
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}
	p.loaned[res] = struct{}{}
	p.mu.Unlock()

	p.stats.recordCreate()
	return res, nil
}

func (p *channelPool) put(res *channelResource, used bool) {
	p.mu.Lock()
	delete(p.loaned, res)

	// Connections from before a Clear are not recycled
	if p.closed || res.generation != p.generation {
		p.mu.Unlock()
		_ = res.conn.Close()
		p.slots.Release(1)
		return
	}

	if used {
		res.lastUsedTime = coarsetime.Now()
	}
	p.idle = append(p.idle, res)
	p.mu.Unlock()

	p.slots.Release(1)
}

func (p *channelPool) destroy(res *channelResource) {
	p.mu.Lock()
	delete(p.loaned, res)
	current := !p.closed && res.generation == p.generation
	if current {
		p.size--
	}
	p.mu.Unlock()

	_ = res.conn.Close()
	if current {
		p.stats.recordDestroy()
	}
	p.slots.Release(1)
}

func (p *channelPool) AcquireAllIdle() []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()

	var acquired []Resource
	for len(p.idle) > 0 && p.slots.TryAcquire(1) {
		n := len(p.idle)
		res := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.loaned[res] = struct{}{}
		acquired = append(acquired, res)
	}
	return acquired
}

func (p *channelPool) Clear() {
	p.mu.Lock()
	p.generation++
	idle := p.idle
	loaned := p.loaned
	p.idle = make([]*channelResource, 0, p.maxSize)
	p.loaned = make(map[*channelResource]struct{})
	p.size = 0
	p.mu.Unlock()

	for _, res := range idle {
		_ = res.conn.Close()
		p.stats.recordDestroy()
	}

	// Best effort: the borrower gets an I/O error and destroys the resource
	for res := range loaned {
		_ = res.conn.Close()
		p.stats.recordDestroy()
	}
}

func (p *channelPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.Clear()
}

// Stats returns a snapshot of pool statistics.
func (p *channelPool) Stats() PoolStats {
	stats := p.stats.snapshot()

	p.mu.Lock()
	stats.TotalConns = p.size
	stats.IdleConns = int32(len(p.idle))
	stats.ActiveConns = p.size - int32(len(p.idle))
	p.mu.Unlock()

	return stats
}
