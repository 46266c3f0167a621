package memcache_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	memcache "github.com/pior/mctext"
	"github.com/pior/mctext/text"
)

func Example() {
	client, err := memcache.NewClientFromURI("memcached://localhost:11211", memcache.Config{
		MaxSize: 20,
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	stored, err := client.Set(ctx, memcache.Item{Key: "greeting", Value: []byte("hello"), Exptime: 3600})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("stored:", stored)

	item, found, err := client.Get(ctx, "greeting")
	if err != nil {
		log.Fatal(err)
	}
	if found {
		fmt.Printf("value: %s\n", item.Value)
	}
}

func ExampleClient_CompareAndSwap() {
	client, err := memcache.NewClient("localhost:11211", memcache.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	// Optimistic update: retry until no concurrent writer got in between
	for {
		item, found, err := client.Gets(ctx, "visits")
		if err != nil {
			log.Fatal(err)
		}
		if !found {
			if added, err := client.Add(ctx, memcache.Item{Key: "visits", Value: []byte("1")}); err != nil || added {
				break
			}
			continue
		}

		item.Value = append(item.Value, '!')
		swapped, err := client.CompareAndSwap(ctx, item)
		if err != nil {
			log.Fatal(err)
		}
		if swapped {
			break
		}
	}
}

func ExampleClient_GetMany() {
	client, err := memcache.NewClient("localhost:11211", memcache.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	items, err := client.GetMany(context.Background(), []string{"user:1", "user:2", "user:3"})
	if err != nil {
		log.Fatal(err)
	}
	for key, item := range items {
		fmt.Printf("%s=%s\n", key, item.Value)
	}
}

func ExampleClient_Increment() {
	client, err := memcache.NewClient("localhost:11211", memcache.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	value, found, err := client.Increment(ctx, "hits", 1)
	var respErr *text.ResponseError
	switch {
	case errors.As(err, &respErr):
		// The stored value is not a decimal number
		log.Printf("cannot increment: %v", respErr.Cause)
	case err != nil:
		log.Fatal(err)
	case !found:
		_, _ = client.Add(ctx, memcache.Item{Key: "hits", Value: []byte("1")})
	default:
		fmt.Println("hits:", value)
	}
}

func ExampleNewCircuitBreakerConfig() {
	client, err := memcache.NewClient("localhost:11211", memcache.Config{
		// Open after 60% failures over at least 3 requests, retry after 10s
		NewCircuitBreaker: memcache.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	fmt.Println(client.CircuitBreaker().State())
}

func ExampleClient_Stats() {
	client, err := memcache.NewClient("localhost:11211", memcache.Config{
		MinSize:             2,
		HealthCheckInterval: 30 * time.Second,
		MaxConnIdleTime:     5 * time.Minute,
		NewPool:             memcache.NewPuddlePool,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	stats := client.Stats()
	pool := client.PoolStats()
	fmt.Printf("gets=%d hits=%d errors=%d\n", stats.Gets, stats.GetHits, stats.Errors)
	fmt.Printf("connections total=%d idle=%d\n", pool.TotalConns, pool.IdleConns)
}
