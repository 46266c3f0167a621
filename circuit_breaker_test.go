package memcache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/mctext/internal/fakeserver"
	"github.com/pior/mctext/text"
)

func TestNewCircuitBreakerConfig(t *testing.T) {
	newBreaker := NewCircuitBreakerConfig(1, time.Minute, time.Second)

	cb := newBreaker("127.0.0.1:11211")
	require.NotNil(t, cb)
	assert.Equal(t, "127.0.0.1:11211", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestIsBreakerSuccess(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		success bool
	}{
		{"nil", nil, true},
		{"server error reply", &text.ResponseError{Cause: &text.ServerError{Message: "out of memory"}}, true},
		{"unexpected reply", &text.ResponseError{Message: "unexpected reply to set"}, true},
		{"validation", &text.ValidationError{Field: "key", Message: "key is empty"}, true},
		{"client error reply", &text.ResponseError{Cause: &text.ClientError{Message: "bad data chunk"}}, false},
		{"connection", &text.ConnectionError{Op: "dial", Err: errors.New("refused")}, false},
		{"timeout", &text.TimeoutError{Op: "read", Err: context.DeadlineExceeded}, false},
		{"parse", &text.ParseError{Message: "invalid size"}, false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.success, isBreakerSuccess(tt.err))
		})
	}
}

func TestCircuitBreaker_TripsOnConnectionErrors(t *testing.T) {
	dialErr := &text.ConnectionError{Op: "dial", Err: errors.New("connection refused")}

	client, err := NewClient("127.0.0.1:1", Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
		constructor: func(ctx context.Context) (*Connection, error) {
			return nil, dialErr
		},
	})
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	for i := range 3 {
		_, _, err := client.Get(ctx, fmt.Sprintf("key%d", i))
		require.ErrorIs(t, err, dialErr)
	}

	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreaker().State())

	_, _, err = client.Get(ctx, "key")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	var connErr *text.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "circuit", connErr.Op)
	assert.True(t, text.ShouldCloseConnection(err))
	assert.Equal(t, uint64(4), client.Stats().Errors)
}

func TestCircuitBreaker_ServerErrorsDoNotTrip(t *testing.T) {
	server := fakeserver.Start(t)
	client := newTestClient(t, server, Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
	})
	ctx := context.Background()

	server.SetOverride(func(line string) (string, bool) {
		return "SERVER_ERROR busy\r\n", true
	})

	for range 5 {
		_, err := client.Delete(ctx, "k")
		requireResponseCause[*text.ServerError](t, err)
	}

	cb := client.CircuitBreaker()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestCircuitBreaker_Recovers(t *testing.T) {
	server := fakeserver.Start(t)
	client := newTestClient(t, server, Config{
		Timeout:           30 * time.Millisecond,
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, 100*time.Millisecond),
	})
	ctx := context.Background()

	server.SetDelay(100 * time.Millisecond)
	for range 3 {
		_, err := client.Version(ctx)
		var timeoutErr *text.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	}
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreaker().State())

	server.SetDelay(0)
	require.Eventually(t, func() bool {
		return client.CircuitBreaker().State() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	_, err := client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreaker().State())
}
