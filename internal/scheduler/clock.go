// Package scheduler owns time: per-session one-shot timers and the
// periodic reminder/expiry sweeps. Timers are a latency optimisation only;
// the sweeps over persisted timestamps are authoritative, so lost timers
// after a restart cost nothing but promptness.
package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts the time source so tests can pin it.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// ManualClock is a settable clock for tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
