package texquad

import (
	"runtime"
	"sync"
	"time"
)

// simClock is a manually advanced Clock. Ticks are handed to the receiver
// synchronously so every Advance produces exactly one frame per ticker.
type simClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*simTicker
	timers  []*simTimer
}

func newSimClock() *simClock {
	return &simClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &simTicker{c: make(chan time.Time), period: d, next: c.now.Add(d), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *simClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &simTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *simClock) hasTicker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers) > 0
}

// Advance moves time forward by d, fires due timers on new goroutines and
// delivers due ticks. It blocks until each tick is received or its ticker
// is stopped.
func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var fire []func()
	for _, t := range c.timers {
		if !t.done && !now.Before(t.at) {
			t.done = true
			fire = append(fire, t.f)
		}
	}
	var due []*simTicker
	for _, t := range c.tickers {
		if !now.Before(t.next) {
			t.next = t.next.Add(t.period)
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, f := range fire {
		go f()
	}
	for _, t := range due {
		select {
		case t.c <- now:
		case <-t.stopped:
		}
	}
}

// AdvanceUntil keeps advancing by step until done is closed.
func (c *simClock) AdvanceUntil(step time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if !c.hasTicker() {
			runtime.Gosched()
			continue
		}
		c.Advance(step)
	}
}

type simTicker struct {
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *simTicker) C() <-chan time.Time { return t.c }
func (t *simTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type simTimer struct {
	clock *simClock
	at    time.Time
	f     func()
	done  bool
}

func (t *simTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
