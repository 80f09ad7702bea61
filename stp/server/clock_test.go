// clock_test.go
package server

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func waitFired(t *testing.T, c *Clock) firedTimer {
	select {
	case f := <-c.C():
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	return firedTimer{}
}

func TestClockFires(t *testing.T) {
	c := NewClock()
	defer c.Close()

	c.ScheduleAt("hello", c.Now()+10*time.Millisecond)
	assert.Equal(t, 1, c.Pending())
	f := waitFired(t, c)
	assert.Equal(t, "hello", f.name)
	require.True(t, c.Take(f))
	assert.Zero(t, c.Pending())
	// a second take of the same expiry is stale
	assert.False(t, c.Take(f))
}

func TestClockPastDeadline(t *testing.T) {
	c := NewClock()
	defer c.Close()

	c.ScheduleAt("late", 0)
	f := waitFired(t, c)
	assert.True(t, c.Take(f))
}

func TestClockReplaceDropsStaleExpiry(t *testing.T) {
	c := NewClock()
	defer c.Close()

	c.ScheduleAt("upgrade", c.Now())
	stale := waitFired(t, c)
	c.ScheduleAt("upgrade", c.Now()+time.Hour)
	assert.False(t, c.Take(stale))
	assert.Equal(t, 1, c.Pending())
}

func TestClockCancel(t *testing.T) {
	c := NewClock()
	defer c.Close()

	c.ScheduleAt("hello", c.Now()+time.Hour)
	c.Cancel("hello")
	assert.Zero(t, c.Pending())
	c.Cancel("unknown")
}

func TestClockCloseReleasesExpiries(t *testing.T) {
	c := NewClock()
	c.ScheduleAt("a", 0)
	c.ScheduleAt("b", 0)
	time.Sleep(20 * time.Millisecond)
	c.Close()
	c.Close()
	assert.Zero(t, c.Pending())
}
