package learning

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Gate rate-limits quick cycles. Concurrent callers race for the slot; the
// loser gets false and the cycle reports itself skipped.
type Gate struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	last     time.Time
}

func NewGate(interval time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Gate{clock: clock, interval: interval}
}

// Allow reports whether a run may start now, and records the run if so.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
