// Package coarsetime provides a clock refreshed every 50ms by a background
// goroutine. The connection pool stamps creation and last use times with it
// on every acquire and release.
package coarsetime

import (
	"sync/atomic"
	"time"
)

// Resolution is the refresh interval of the clock.
const Resolution = 50 * time.Millisecond

var current atomic.Pointer[time.Time]

func init() {
	refresh()

	ticker := time.NewTicker(Resolution)
	go func() {
		for range ticker.C {
			refresh()
		}
	}()
}

func refresh() {
	t := time.Now()
	current.Store(&t)
}

// Now returns the current time, late by at most Resolution.
func Now() time.Time {
	return *current.Load()
}
