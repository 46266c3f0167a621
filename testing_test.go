package memcache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pior/mctext/internal/fakeserver"
	"github.com/pior/mctext/internal/testutils"
	"github.com/pior/mctext/text"
)

var errNoMoreMocks = errors.New("no more mock connections")

func newTestClient(t testing.TB, server *fakeserver.Server, config Config) *Client {
	t.Helper()
	client, err := NewClient(server.Addr(), config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// recordLines records the command lines received by the server.
func recordLines(server *fakeserver.Server) func() []string {
	var mu sync.Mutex
	var lines []string

	server.SetOverride(func(line string) (string, bool) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
		return "", false
	})

	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}

// mockConstructor returns a constructor handing out the given mocks in order.
func mockConstructor(mocks ...*testutils.ConnectionMock) ConnConstructor {
	var mu sync.Mutex
	return func(ctx context.Context) (*Connection, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(mocks) == 0 {
			return nil, &text.ConnectionError{Op: "dial", Err: errNoMoreMocks}
		}
		m := mocks[0]
		mocks = mocks[1:]
		return NewConnection(m), nil
	}
}

func requireResponseCause[T error](t testing.TB, err error) T {
	t.Helper()
	var respErr *text.ResponseError
	require.ErrorAs(t, err, &respErr)
	cause, ok := respErr.Cause.(T)
	require.True(t, ok, "unexpected cause %T", respErr.Cause)
	return cause
}
