package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	memcache "github.com/pior/mctext"
	"github.com/pior/mctext/promexporter"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	MultiGet     OperationType = "multi-get"
	Increment    OperationType = "increment"
	Delete       OperationType = "delete"
	All          OperationType = "all"
)

var allOperations = []OperationType{CacheHit, DynamicValue, CacheMiss, MultiGet, Increment, Delete}

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// benchFunc runs one iteration of a benchmark. It returns errMismatch when
// the server returned something else than what was stored.
type benchFunc func(ctx context.Context, worker, i int) error

var errMismatch = errors.New("value mismatch")

func main() {
	var (
		op          = flag.String("operation", "all", "Operation type: cache-hit, dynamic-value, cache-miss, multi-get, increment, delete, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		uri         = flag.String("uri", "memcached://localhost:11211", "Server URI")
		maxSize     = flag.Int("max", 20, "Maximum number of connections")
		puddle      = flag.Bool("puddle", false, "Use the puddle connection pool")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address while running")
	)
	flag.Parse()

	fmt.Printf("Memcache Benchmark Tool\n")
	fmt.Printf("=======================\n")
	fmt.Printf("Operation: %s\n", *op)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Server: %s\n", *uri)
	fmt.Println()

	config := memcache.Config{
		MinSize:             2,
		MaxSize:             int32(*maxSize),
		HealthCheckInterval: 10 * time.Second,
		MaxConnIdleTime:     5 * time.Minute,
	}
	if *puddle {
		config.NewPool = memcache.NewPuddlePool
	}

	client, err := memcache.NewClientFromURI(*uri, config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if *metricsAddr != "" {
		exporter := promexporter.NewExporter(client)
		go func() {
			if err := exporter.ListenAndServe(*metricsAddr); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	fmt.Print("Testing connection...")
	version, err := client.Version(context.Background())
	if err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure memcached is running at %s\n", *uri)
		return
	}
	fmt.Printf(" success! (memcached %s)\n\n", version)

	operations := allOperations
	if OperationType(*op) != All {
		operations = []OperationType{OperationType(*op)}
	}

	for i, operation := range operations {
		if len(operations) > 1 {
			fmt.Printf("\n--- Running %s benchmark ---\n", operation)
		}
		printResult(runSingleOperation(client, operation, *duration, *concurrency))

		// Short pause between operations
		if i < len(operations)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}

	pool := client.PoolStats()
	fmt.Printf("Pool: created=%d destroyed=%d acquires=%d waits=%d (%.1fms total) errors=%d\n",
		pool.CreatedConns, pool.DestroyedConns, pool.AcquireCount, pool.AcquireWaitCount,
		float64(pool.AcquireWaitTimeNs)/1e6, pool.AcquireErrors)
}

func runSingleOperation(client *memcache.Client, operation OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()

	run, err := setupOperation(ctx, client, operation, concurrency)
	if err != nil {
		return &BenchmarkResult{
			Operation:    operation,
			ErrorMessage: err.Error(),
		}
	}

	return runWorkers(ctx, operation, run, duration, concurrency)
}

// setupOperation prepares the data of a benchmark and returns its iteration.
func setupOperation(ctx context.Context, client *memcache.Client, operation OperationType, concurrency int) (benchFunc, error) {
	switch operation {
	case CacheHit:
		value := []byte("cache-hit-value")
		if _, err := client.Set(ctx, memcache.Item{Key: "cache-hit-key", Value: value, Exptime: 3600}); err != nil {
			return nil, fmt.Errorf("failed to set initial value: %w", err)
		}
		return func(ctx context.Context, worker, i int) error {
			item, found, err := client.Get(ctx, "cache-hit-key")
			if err != nil {
				return err
			}
			if !found || string(item.Value) != string(value) {
				return errMismatch
			}
			return nil
		}, nil

	case DynamicValue:
		return func(ctx context.Context, worker, i int) error {
			key := fmt.Sprintf("dynamic-key-%d-%d", worker, i)
			value := []byte(key)
			if _, err := client.Set(ctx, memcache.Item{Key: key, Value: value, Exptime: 60}); err != nil {
				return err
			}
			item, found, err := client.Get(ctx, key)
			if err != nil {
				return err
			}
			if !found || string(item.Value) != string(value) {
				return errMismatch
			}
			return nil
		}, nil

	case CacheMiss:
		return func(ctx context.Context, worker, i int) error {
			_, found, err := client.Get(ctx, fmt.Sprintf("missing-key-%d-%d", worker, i))
			if err != nil {
				return err
			}
			if found {
				return errMismatch
			}
			return nil
		}, nil

	case MultiGet:
		keys := make([]string, 20)
		for i := range keys {
			keys[i] = "multi-get-key-" + strconv.Itoa(i)
			if _, err := client.Set(ctx, memcache.Item{Key: keys[i], Value: []byte(keys[i]), Exptime: 3600}); err != nil {
				return nil, fmt.Errorf("failed to set initial values: %w", err)
			}
		}
		return func(ctx context.Context, worker, i int) error {
			items, err := client.GetMany(ctx, keys)
			if err != nil {
				return err
			}
			if len(items) != len(keys) {
				return errMismatch
			}
			return nil
		}, nil

	case Increment:
		for worker := range concurrency {
			key := "counter-" + strconv.Itoa(worker)
			if _, err := client.Set(ctx, memcache.Item{Key: key, Value: []byte("0"), Exptime: 3600}); err != nil {
				return nil, fmt.Errorf("failed to set initial counter: %w", err)
			}
		}
		return func(ctx context.Context, worker, i int) error {
			// Each worker owns its counter, so the value is predictable
			value, found, err := client.Increment(ctx, "counter-"+strconv.Itoa(worker), 1)
			if err != nil {
				return err
			}
			if !found || value != uint64(i+1) {
				return errMismatch
			}
			return nil
		}, nil

	case Delete:
		return func(ctx context.Context, worker, i int) error {
			key := fmt.Sprintf("delete-key-%d-%d", worker, i)
			if _, err := client.Set(ctx, memcache.Item{Key: key, Value: []byte("x")}); err != nil {
				return err
			}
			deleted, err := client.Delete(ctx, key)
			if err != nil {
				return err
			}
			if !deleted {
				return errMismatch
			}
			return nil
		}, nil
	}

	return nil, fmt.Errorf("unknown operation: %s", operation)
}

func runWorkers(ctx context.Context, operation OperationType, run benchFunc, duration time.Duration, concurrency int) *BenchmarkResult {
	fmt.Printf("Starting %s benchmark with %d workers for %v...\n", operation, concurrency, duration)

	result := &BenchmarkResult{Operation: operation, Correctness: true}
	var totalOps, successes, failures, mismatches, totalLatency atomic.Int64
	var lastErr atomic.Value

	startTime := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	for worker := range concurrency {
		g.Go(func() error {
			for i := 0; time.Since(startTime) < duration; i++ {
				opStart := time.Now()
				err := run(ctx, worker, i)
				totalLatency.Add(int64(time.Since(opStart)))
				totalOps.Add(1)

				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, errMismatch):
					mismatches.Add(1)
					failures.Add(1)
				default:
					lastErr.Store(err.Error())
					failures.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps.Load()
	result.Successes = successes.Load()
	result.Failures = failures.Load()

	if n := mismatches.Load(); n > 0 {
		result.Correctness = false
		result.ErrorMessage = fmt.Sprintf("%d value mismatches", n)
	} else if msg, ok := lastErr.Load().(string); ok {
		result.ErrorMessage = "last error: " + msg
	}

	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}

	return result
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}
