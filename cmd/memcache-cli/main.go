package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	memcache "github.com/pior/mctext"
	"github.com/pior/mctext/promexporter"
	"github.com/pior/mctext/text"
)

const help = `Commands:
  get <key>                          - Get a value by key
  gets <key>                         - Get a value and its CAS token
  mget <key1> <key2> ...             - Get multiple keys at once
  set <key> <value> [exptime] [flags]
  add <key> <value> [exptime] [flags]
  replace <key> <value> [exptime] [flags]
  append <key> <value>
  prepend <key> <value>
  cas <key> <value> <cas> [exptime] [flags]
  delete <key>                       - Delete a key
  touch <key> <exptime>              - Update the expiration time
  incr <key> <delta>                 - Increment a counter
  decr <key> <delta>                 - Decrement a counter
  stats [group]                      - Show server statistics
  version                            - Show server version
  flush_all [delay]                  - Invalidate all items
  bench <count> [concurrency]        - Run concurrent sets and gets
  pool                               - Show client and pool statistics
  quit                               - Exit the CLI`

func main() {
	var (
		uri         = flag.String("uri", "memcached://localhost:11211", "Server URI")
		minSize     = flag.Int("min", 0, "Connections opened at startup")
		maxSize     = flag.Int("max", memcache.DefaultMaxSize, "Maximum number of connections")
		timeout     = flag.Duration("timeout", memcache.DefaultTimeout, "Operation timeout")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9150)")
	)
	flag.Parse()

	client, err := memcache.NewClientFromURI(*uri, memcache.Config{
		MinSize:             int32(*minSize),
		MaxSize:             int32(*maxSize),
		Timeout:             *timeout,
		HealthCheckInterval: 30 * time.Second,
		NewCircuitBreaker:   memcache.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second),
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if *metricsAddr != "" {
		exporter := promexporter.NewExporter(client)
		go func() {
			log.Printf("Serving metrics on %s/metrics", *metricsAddr)
			if err := exporter.ListenAndServe(*metricsAddr); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	fmt.Println("Memcache CLI Tool")
	fmt.Println("=================")
	fmt.Printf("Server: %s\n", client.Addr())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		if command == "quit" || command == "exit" {
			fmt.Println("Goodbye!")
			return
		}

		start := time.Now()
		if err := run(context.Background(), client, command, parts[1:]); err != nil {
			fmt.Printf("Error: %v (took %v)\n", err, time.Since(start))
			continue
		}
		fmt.Printf("(took %v)\n", time.Since(start))
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}
}

type usageError string

func (e usageError) Error() string {
	return "usage: " + string(e)
}

func run(ctx context.Context, client *memcache.Client, command string, args []string) error {
	switch command {
	case "help":
		fmt.Println(help)
		return nil

	case "get", "gets":
		if len(args) != 1 {
			return usageError(command + " <key>")
		}
		get := client.Get
		if command == "gets" {
			get = client.Gets
		}
		item, found, err := get(ctx, args[0])
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("Key not found")
			return nil
		}
		printItem(item)
		return nil

	case "mget":
		if len(args) == 0 {
			return usageError("mget <key1> <key2> ...")
		}
		items, err := client.GetMany(ctx, args)
		if err != nil {
			return err
		}
		for _, key := range args {
			if item, ok := items[key]; ok {
				printItem(item)
			} else {
				fmt.Printf("%s: not found\n", key)
			}
		}
		return nil

	case "set", "add", "replace", "append", "prepend":
		item, err := parseItem(command, args)
		if err != nil {
			return err
		}
		store := map[string]func(context.Context, memcache.Item) (bool, error){
			"set":     client.Set,
			"add":     client.Add,
			"replace": client.Replace,
			"append":  client.Append,
			"prepend": client.Prepend,
		}[command]
		stored, err := store(ctx, item)
		if err != nil {
			return err
		}
		printResult(stored, "STORED", "NOT_STORED")
		return nil

	case "cas":
		if len(args) < 3 {
			return usageError("cas <key> <value> <cas> [exptime] [flags]")
		}
		cas, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cas: %w", err)
		}
		item, err := parseItem(command, append(args[:2:2], args[3:]...))
		if err != nil {
			return err
		}
		item.CAS = cas
		status, err := client.CompareAndSwapStatus(ctx, item)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil

	case "delete", "del":
		if len(args) != 1 {
			return usageError("delete <key>")
		}
		deleted, err := client.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(deleted, "DELETED", "NOT_FOUND")
		return nil

	case "touch":
		if len(args) != 2 {
			return usageError("touch <key> <exptime>")
		}
		exptime, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid exptime: %w", err)
		}
		touched, err := client.Touch(ctx, args[0], exptime)
		if err != nil {
			return err
		}
		printResult(touched, "TOUCHED", "NOT_FOUND")
		return nil

	case "incr", "decr":
		if len(args) != 2 {
			return usageError(command + " <key> <delta>")
		}
		delta, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid delta: %w", err)
		}
		op := client.Increment
		if command == "decr" {
			op = client.Decrement
		}
		value, found, err := op(ctx, args[0], delta)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("NOT_FOUND")
			return nil
		}
		fmt.Println(value)
		return nil

	case "stats":
		stats, err := client.ServerStats(ctx, args...)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if value := stats[name]; value != nil {
				fmt.Printf("  %-28s %s\n", name, *value)
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil

	case "version":
		version, err := client.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil

	case "flush_all":
		var delay int64
		if len(args) == 1 {
			var err error
			if delay, err = strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid delay: %w", err)
			}
		}
		if _, err := client.FlushAllAfter(ctx, delay); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil

	case "bench":
		return runBench(ctx, client, args)

	case "pool":
		printStats(client)
		return nil
	}

	return fmt.Errorf("unknown command %q, type 'help' for available commands", command)
}

// parseItem parses <key> <value> [exptime] [flags].
func parseItem(command string, args []string) (memcache.Item, error) {
	if len(args) < 2 || len(args) > 4 {
		return memcache.Item{}, usageError(command + " <key> <value> [exptime] [flags]")
	}

	item := memcache.Item{Key: args[0], Value: []byte(args[1])}

	if len(args) >= 3 {
		exptime, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return item, fmt.Errorf("invalid exptime: %w", err)
		}
		item.Exptime = exptime
	}
	if len(args) == 4 {
		flags, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			return item, fmt.Errorf("invalid flags: %w", err)
		}
		item.Flags = uint32(flags)
	}
	return item, nil
}

func printItem(item memcache.Item) {
	fmt.Printf("%s: %q (flags=%d", item.Key, item.Value, item.Flags)
	if item.CAS != 0 {
		fmt.Printf(" cas=%d", item.CAS)
	}
	fmt.Println(")")
}

func printResult(ok bool, yes, no string) {
	if ok {
		fmt.Println(yes)
	} else {
		fmt.Println(no)
	}
}

func printStats(client *memcache.Client) {
	stats := client.Stats()
	fmt.Printf("Client: gets=%d hits=%d stores=%d deletes=%d touches=%d arithmetic=%d errors=%d\n",
		stats.Gets, stats.GetHits, stats.Stores, stats.Deletes, stats.Touches, stats.Arithmetic, stats.Errors)

	pool := client.PoolStats()
	fmt.Printf("Pool: total=%d active=%d idle=%d created=%d destroyed=%d acquires=%d waits=%d errors=%d\n",
		pool.TotalConns, pool.ActiveConns, pool.IdleConns, pool.CreatedConns, pool.DestroyedConns,
		pool.AcquireCount, pool.AcquireWaitCount, pool.AcquireErrors)

	if cb := client.CircuitBreaker(); cb != nil {
		fmt.Printf("Circuit breaker: %s\n", cb.State())
	}
}

// runBench stores and reads back count keys from concurrent workers.
func runBench(ctx context.Context, client *memcache.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("bench <count> [concurrency]")
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		return fmt.Errorf("invalid count %q", args[0])
	}
	concurrency := 10
	if len(args) == 2 {
		if concurrency, err = strconv.Atoi(args[1]); err != nil || concurrency <= 0 {
			return fmt.Errorf("invalid concurrency %q", args[1])
		}
	}

	var next, failures atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for range concurrency {
		g.Go(func() error {
			for {
				i := next.Add(1)
				if i > int64(count) {
					return nil
				}

				key := "bench:" + strconv.FormatInt(i, 10)
				value := []byte(key)

				if _, err := client.Set(gctx, memcache.Item{Key: key, Value: value}); err != nil {
					if isFatal(err) {
						return err
					}
					failures.Add(1)
					continue
				}
				item, found, err := client.Get(gctx, key)
				if err != nil || !found || string(item.Value) != key {
					failures.Add(1)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Printf("%d set+get in %v (%.0f ops/sec), %d failures\n",
		count, elapsed, float64(2*count)/elapsed.Seconds(), failures.Load())
	return nil
}

// isFatal stops the benchmark on errors that will not go away by retrying.
func isFatal(err error) bool {
	var validationErr *text.ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, memcache.ErrPoolClosed)
}
