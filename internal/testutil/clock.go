// Package testutil provides deterministic test doubles: a controllable
// wall clock and a scriptable fake of the remote system of record.
package testutil

import (
	"sync"
	"time"
)

// WallClock is a controllable wall clock for staleness tests.
//
// Thread-safety: all methods are safe for concurrent use.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock frozen at the given instant.
func NewWallClock(start time.Time) *WallClock {
	return &WallClock{now: start}
}

// Now returns the current frozen instant. Pass as engine.WithNow(c.Now).
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
