package memcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrPoolClosed = errors.New("memcache: pool closed")

// ConnConstructor opens a new connection to the server.
type ConnConstructor func(ctx context.Context) (*Connection, error)

// PoolConfig holds the sizing of a connection pool.
type PoolConfig struct {
	// MinSize connections are opened when the pool is created.
	MinSize int32

	// MaxSize is the maximum number of live connections (idle + in use).
	// Required: must be > 0.
	MaxSize int32
}

func (c PoolConfig) validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("memcache: pool MaxSize must be > 0, got %d", c.MaxSize)
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("memcache: pool MinSize must be between 0 and MaxSize (%d), got %d", c.MaxSize, c.MinSize)
	}
	return nil
}

// PoolFactory creates a Pool. See NewChannelPool and NewPuddlePool.
type PoolFactory func(constructor ConnConstructor, config PoolConfig) (Pool, error)

// Pool manages the connections to a single memcache server.
type Pool interface {
	// Acquire returns an idle connection, opens a new one if the pool is below
	// its maximum size, or waits for a connection to be released.
	// The wait is bounded by ctx.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires all idle connections, for health checks.
	AcquireAllIdle() []Resource

	// Clear closes all connections. Connections in use are closed too and
	// destroyed when returned. The pool stays usable.
	Clear()

	// Close closes all connections and rejects further acquisitions.
	Close()

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats
}

// Resource is a connection on loan from a Pool.
// Exactly one of Release, ReleaseUnused or Destroy must be called.
type Resource interface {
	Value() *Connection

	// Release returns a healthy connection to the pool.
	Release()

	// ReleaseUnused returns the connection without updating its last used time.
	ReleaseUnused()

	// Destroy closes the connection and frees its slot in the pool.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}
