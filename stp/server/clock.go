// clock.go
package server

import (
	stp "github.com/oshothebig/l2/stp/protocol"
	"sync"
	"time"
)

type firedTimer struct {
	name string
	gen  uint64
}

// Clock is the wall clock stp.Scheduler.  Expiries are queued on C and only
// count once Take accepts them, so a timer replaced or cancelled after its
// goroutine already fired is dropped.  Everything except the expiry
// goroutines runs on the dispatch loop.
type Clock struct {
	start  time.Time
	gen    uint64
	timers map[string]*clockTimer
	fired  chan firedTimer
	done   chan struct{}
	once   sync.Once
}

type clockTimer struct {
	t   *time.Timer
	gen uint64
}

var _ stp.Scheduler = (*Clock)(nil)

func NewClock() *Clock {
	return &Clock{
		start:  time.Now(),
		timers: make(map[string]*clockTimer),
		fired:  make(chan firedTimer),
		done:   make(chan struct{}),
	}
}

func (c *Clock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *Clock) ScheduleAt(name string, at time.Duration) {
	c.Cancel(name)
	d := at - c.Now()
	if d < 0 {
		d = 0
	}
	c.gen++
	ft := firedTimer{name: name, gen: c.gen}
	c.timers[name] = &clockTimer{
		gen: ft.gen,
		t: time.AfterFunc(d, func() {
			select {
			case c.fired <- ft:
			case <-c.done:
			}
		}),
	}
}

func (c *Clock) Cancel(name string) {
	if ct, ok := c.timers[name]; ok {
		ct.t.Stop()
		delete(c.timers, name)
	}
}

// C delivers expiries, pass each one to Take
func (c *Clock) C() <-chan firedTimer { return c.fired }

// Take reports whether f is still the pending timer for its name and
// clears it
func (c *Clock) Take(f firedTimer) bool {
	ct, ok := c.timers[f.name]
	if !ok || ct.gen != f.gen {
		return false
	}
	delete(c.timers, f.name)
	return true
}

// Pending number of armed timers
func (c *Clock) Pending() int { return len(c.timers) }

// Close stops every timer and releases expiry goroutines still waiting on C
func (c *Clock) Close() {
	c.once.Do(func() {
		for name, ct := range c.timers {
			ct.t.Stop()
			delete(c.timers, name)
		}
		close(c.done)
	})
}
