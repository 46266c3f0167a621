package memcache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/mctext/text"
)

// Defaults applied by NewClient to zero Config fields.
const (
	DefaultMaxSize        = 10
	DefaultTimeout        = time.Second
	DefaultConnectTimeout = time.Second
	DefaultMaxValueLength = text.DefaultMaxValueLength
	DefaultPort           = "11211"
)

// Config holds configuration for the memcache client and its connection pool.
type Config struct {
	// MinSize connections are opened when the client is created.
	// Default: 0 (connections are opened on demand).
	MinSize int32

	// MaxSize is the maximum number of connections in the pool.
	// Operations wait for a connection once MaxSize are in use.
	// Default: 10.
	MaxSize int32

	// Timeout bounds each operation (acquire, write and read) when the
	// context has no deadline. Default: 1s. Negative disables it.
	Timeout time.Duration

	// MaxValueLength is the largest value accepted by storage commands.
	// Default: 1MiB. Negative disables the check.
	MaxValueLength int

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit. Enforced by the health check.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can be idle before being closed.
	// Zero means no limit. Enforced by the health check.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often to check idle connections for health.
	// Zero disables health checks.
	HealthCheckInterval time.Duration

	// Dialer is the net.Dialer used to create new connections.
	// If nil, a net.Dialer with a DefaultConnectTimeout timeout is used.
	Dialer *net.Dialer

	// NewPool is the connection pool factory function.
	// If nil, uses the channel-based pool: NewChannelPool.
	NewPool PoolFactory

	// NewCircuitBreaker creates the circuit breaker for the server.
	// If nil, no circuit breaker is used. See NewCircuitBreakerConfig.
	NewCircuitBreaker func(serverAddr string) *CircuitBreaker

	// for testing purposes only
	constructor ConnConstructor
}

// Client is a memcache client for a single server using a connection pool.
// It is safe for concurrent use.
type Client struct {
	addr           string
	pool           Pool
	circuitBreaker *CircuitBreaker

	timeout             time.Duration
	maxValueLength      int
	maxConnLifetime     time.Duration
	maxConnIdleTime     time.Duration
	healthCheckInterval time.Duration

	stopHealthCheck chan struct{}
	closeOnce       sync.Once

	stats clientStatsCollector
}

// NewClient creates a new memcache client for the server at addr (host:port).
// MinSize connections are opened before returning.
func NewClient(addr string, config Config) (*Client, error) {
	if addr == "" {
		return nil, errors.New("memcache: no server address")
	}

	if config.MaxSize == 0 {
		config.MaxSize = DefaultMaxSize
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxValueLength == 0 {
		config.MaxValueLength = DefaultMaxValueLength
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: DefaultConnectTimeout}
	}

	constructor := config.constructor
	if constructor == nil {
		constructor = func(ctx context.Context) (*Connection, error) {
			netConn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, &text.ConnectionError{Op: "dial", Err: err}
			}
			return NewConnection(netConn), nil
		}
	}

	newPool := config.NewPool
	if newPool == nil {
		newPool = NewChannelPool
	}

	pool, err := newPool(constructor, PoolConfig{MinSize: config.MinSize, MaxSize: config.MaxSize})
	if err != nil {
		return nil, fmt.Errorf("memcache: create pool for %s: %w", addr, err)
	}

	client := &Client{
		addr:                addr,
		pool:                pool,
		timeout:             config.Timeout,
		maxValueLength:      config.MaxValueLength,
		maxConnLifetime:     config.MaxConnLifetime,
		maxConnIdleTime:     config.MaxConnIdleTime,
		healthCheckInterval: config.HealthCheckInterval,
		stopHealthCheck:     make(chan struct{}),
	}

	if config.NewCircuitBreaker != nil {
		client.circuitBreaker = config.NewCircuitBreaker(addr)
	}

	// Start health check goroutine if enabled
	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Close stops the health checks and closes all connections.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopHealthCheck)
		c.pool.Close()
	})
}

// Clear closes all pooled connections. The client stays usable and opens
// new connections on demand.
func (c *Client) Clear() {
	c.pool.Clear()
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// PoolStats returns a snapshot of the connection pool statistics.
func (c *Client) PoolStats() PoolStats {
	return c.pool.Stats()
}

// CircuitBreaker returns the circuit breaker, nil if not configured.
func (c *Client) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

// healthCheckLoop periodically checks idle connections for health and lifecycle limits.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkConnections()
		}
	}
}

// checkConnections checks all idle connections and destroys those that are stale or unhealthy.
func (c *Client) checkConnections() {
	now := time.Now()

	for _, res := range c.pool.AcquireAllIdle() {
		// Check max connection lifetime
		if c.maxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.maxConnLifetime {
			res.Destroy()
			continue
		}

		// Check max idle time
		if c.maxConnIdleTime > 0 && res.IdleDuration() > c.maxConnIdleTime {
			res.Destroy()
			continue
		}

		// Perform health check by sending a version command
		if err := c.healthCheck(res.Value()); err != nil {
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

// healthCheck performs a version round-trip on a connection.
func (c *Client) healthCheck(conn *Connection) error {
	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()

	req := text.NewVersionRequest()
	raw, err := conn.Execute(ctx, req)
	if err != nil {
		return err
	}

	_, err = text.DecodeVersion(req, raw)
	return err
}

// withTimeout applies the client timeout when the context has no deadline.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// roundTrip sends the request on a pooled connection and returns the raw reply.
// If a circuit breaker is configured, the round-trip is wrapped with it and
// requests it rejects fail with a ConnectionError.
func (c *Client) roundTrip(ctx context.Context, req *text.Request) ([]byte, error) {
	if c.circuitBreaker == nil {
		return c.roundTripDirect(ctx, req)
	}

	raw, err := c.circuitBreaker.Execute(func() ([]byte, error) {
		return c.roundTripDirect(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &text.ConnectionError{Op: "circuit", Err: err}
	}
	return raw, err
}

// roundTripDirect performs the round-trip without circuit breaker.
//
// The connection is destroyed when the exchange failed or when the server
// replied with an error that leaves the stream in an unknown state. It is
// released otherwise, including when the reply later fails to decode.
func (c *Client) roundTripDirect(ctx context.Context, req *text.Request) ([]byte, error) {
	resource, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, acquireError(ctx, err)
	}

	raw, err := resource.Value().Execute(ctx, req)
	if err != nil {
		resource.Destroy()
		return nil, err
	}

	if text.ShouldCloseConnection(text.ReplyError(raw)) {
		resource.Destroy()
	} else {
		resource.Release()
	}
	return raw, nil
}

func acquireError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &text.TimeoutError{Op: "acquire", Err: err}
		}
		return &text.ConnectionError{Op: "acquire", Err: err}
	}
	return err
}

// execute runs the request/reply cycle shared by all operations:
// validate, acquire, write, read, release, decode.
func execute[T any](ctx context.Context, c *Client, req *text.Request, decode func(*text.Request, []byte) (T, error)) (T, error) {
	var zero T

	if err := req.Validate(c.maxValueLength); err != nil {
		c.stats.recordError()
		return zero, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.roundTrip(ctx, req)
	if err != nil {
		c.stats.recordError()
		return zero, err
	}

	result, err := decode(req, raw)
	if err != nil {
		c.stats.recordError()
		return zero, err
	}
	return result, nil
}
