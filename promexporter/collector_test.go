package promexporter

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/pior/mctext"
	"github.com/pior/mctext/internal/fakeserver"
)

func newClient(t *testing.T, config memcache.Config) (*memcache.Client, *fakeserver.Server) {
	t.Helper()
	server := fakeserver.Start(t)
	client, err := memcache.NewClient(server.Addr(), config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, server
}

func TestCollector(t *testing.T) {
	client, server := newClient(t, memcache.Config{})
	ctx := context.Background()

	_, err := client.Set(ctx, memcache.Item{Key: "a", Value: []byte("1")})
	require.NoError(t, err)
	_, err = client.GetMany(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = client.Delete(ctx, "a")
	require.NoError(t, err)

	collector := NewCollector(client)

	expected := `
# HELP memcache_client_operations_total Total number of operations by type
# TYPE memcache_client_operations_total counter
memcache_client_operations_total{op="arithmetic",server="ADDR"} 0
memcache_client_operations_total{op="delete",server="ADDR"} 1
memcache_client_operations_total{op="store",server="ADDR"} 1
memcache_client_operations_total{op="touch",server="ADDR"} 0
# HELP memcache_client_retrieved_keys_total Keys requested by get and gets, by result
# TYPE memcache_client_retrieved_keys_total counter
memcache_client_retrieved_keys_total{result="hit",server="ADDR"} 1
memcache_client_retrieved_keys_total{result="miss",server="ADDR"} 2
# HELP memcache_pool_connections Connection pool statistics
# TYPE memcache_pool_connections gauge
memcache_pool_connections{server="ADDR",state="active"} 0
memcache_pool_connections{server="ADDR",state="idle"} 1
memcache_pool_connections{server="ADDR",state="total"} 1
`
	expected = strings.ReplaceAll(expected, "ADDR", server.Addr())

	err = testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"memcache_client_operations_total",
		"memcache_client_retrieved_keys_total",
		"memcache_pool_connections",
	)
	require.NoError(t, err)

	// No circuit breaker configured
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "memcache_circuit_breaker_state"))
}

func TestCollector_CircuitBreaker(t *testing.T) {
	client, _ := newClient(t, memcache.Config{
		NewCircuitBreaker: memcache.NewCircuitBreakerConfig(1, time.Minute, time.Minute),
	})

	collector := NewCollector(client)
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "memcache_circuit_breaker_state"))
	assert.Equal(t, 2, testutil.CollectAndCount(collector, "memcache_circuit_breaker_failures"))
}

func TestCollector_Lint(t *testing.T) {
	client, _ := newClient(t, memcache.Config{})

	problems, err := testutil.CollectAndLint(NewCollector(client))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestExporter_Handler(t *testing.T) {
	clientA, _ := newClient(t, memcache.Config{MinSize: 1})
	clientB, _ := newClient(t, memcache.Config{MinSize: 2})

	exporter := NewExporter(clientA, clientB)

	server := httptest.NewServer(exporter.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `memcache_pool_connections{server="`+clientA.Addr()+`",state="idle"} 1`)
	assert.Contains(t, string(body), `memcache_pool_connections{server="`+clientB.Addr()+`",state="idle"} 2`)
}
