package memcache

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/mctext/text"
)

// CircuitBreaker guards the round-trips to the server.
type CircuitBreaker = gobreaker.CircuitBreaker[[]byte]

// NewCircuitBreakerConfig returns a function that creates a circuit breaker for a server.
// This is a helper for common use cases.
//
// Only transport failures (connection errors, timeouts, framing errors) count
// as failures. Server replies, including error replies, prove the server is up.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(serverAddr string) *CircuitBreaker {
	return func(serverAddr string) *CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: isBreakerSuccess,
		}
		return gobreaker.NewCircuitBreaker[[]byte](settings)
	}
}

func isBreakerSuccess(err error) bool {
	return !text.ShouldCloseConnection(err)
}
