// Package clock provides the injectable wall-clock source shared by the
// ticket store and the schedulers. Production code uses Real(); tests use
// Fake() and move time explicitly.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time and drives periodic work.
type Clock interface {
	Now() time.Time
	// NewTicker panics if d <= 0, like time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called. C has capacity 1; ticks
// are dropped while the reader is behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

type realClock struct{}

// Real returns a Clock backed by time.Now, truncated to microseconds so that
// values survive a round trip through Postgres timestamptz unchanged.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// FakeClock is a manually driven Clock. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
	changed *sync.Cond
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker returns a ticker that fires when Advance or Set moves the clock
// past its next deadline.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.current.Add(d),
	}
	c.tickers = append(c.tickers, ft)
	c.changed.Broadcast()
	return &Ticker{
		C: ft.ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
			c.removeStopped()
			c.changed.Broadcast()
		},
	}
}

// Advance moves the clock forward by d. Each live ticker whose deadline was
// reached fires at most once.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveTo(c.current.Add(d))
}

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveTo(t)
}

// WaitForTickers blocks until at least n tickers are live.
func (c *FakeClock) WaitForTickers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.tickers) < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) moveTo(t time.Time) {
	c.current = t
	for _, ft := range c.tickers {
		if ft.next.After(t) {
			continue
		}
		select {
		case ft.ch <- t:
		default:
		}
		for !ft.next.After(t) {
			ft.next = ft.next.Add(ft.interval)
		}
	}
}

func (c *FakeClock) removeStopped() {
	live := c.tickers[:0]
	for _, ft := range c.tickers {
		if !ft.stopped {
			live = append(live, ft)
		}
	}
	c.tickers = live
}
