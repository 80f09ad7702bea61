// sim.go
//
// Package sim runs spanning tree engines against a virtual clock.  Bridges are
// joined by segments, every BPDU crosses a segment as an encoded frame and is
// decoded again on the far side.  Nothing runs concurrently: an event handler
// runs to completion before the next event is taken off the queue.
package sim

import (
	"container/heap"
	"github.com/pkg/errors"
	stp "github.com/oshothebig/l2/stp/protocol"
	"go.uber.org/zap"
	"strings"
	"time"
)

type event struct {
	at        time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	index     int
}

// eventQueue orders by time, events at the same time run in the order
// they were scheduled
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x interface{}) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// Trace is reported for every frame and every external event
type Trace struct {
	At     time.Duration
	Bridge string
	Port   stp.InterfaceId
	Kind   string
	Detail string
}

const (
	TraceFrameTx = "tx"
	TraceFrameRx = "rx"
	TraceDrop    = "drop"
	TraceEvent   = "event"
)

type Simulator struct {
	now   time.Duration
	seq   uint64
	queue eventQueue

	bridges  map[string]*Bridge
	order    []string
	segments map[string]*Segment
	segOrder []string

	started bool
	trace   func(Trace)
	log     *zap.Logger
}

func New(log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		bridges:  make(map[string]*Bridge),
		segments: make(map[string]*Segment),
		log:      log,
	}
}

func (s *Simulator) Now() time.Duration { return s.now }

// SetTrace installs a hook called for frames and external events
func (s *Simulator) SetTrace(f func(Trace)) { s.trace = f }

func (s *Simulator) emit(tr Trace) {
	if s.trace == nil {
		return
	}
	tr.At = s.now
	s.trace(tr)
}

func (s *Simulator) schedule(at time.Duration, fn func()) *event {
	if at < s.now {
		at = s.now
	}
	s.seq++
	ev := &event{at: at, seq: s.seq, fn: fn}
	heap.Push(&s.queue, ev)
	return ev
}

// At runs fn once the clock reaches t
func (s *Simulator) At(t time.Duration, fn func()) {
	s.schedule(t, fn)
}

func (s *Simulator) Bridge(name string) *Bridge { return s.bridges[name] }

// Bridges in the order they were added
func (s *Simulator) Bridges() []*Bridge {
	out := make([]*Bridge, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.bridges[name])
	}
	return out
}

func (s *Simulator) Segment(name string) *Segment { return s.segments[name] }

// Start brings every bridge up at the current time
func (s *Simulator) Start() error {
	if s.started {
		return errors.New("simulator already started")
	}
	if len(s.order) == 0 {
		return errors.New("simulator has no bridges")
	}
	s.started = true
	// every bridge is powered before any of them looks at its carrier
	for _, b := range s.Bridges() {
		b.up = true
	}
	for _, b := range s.Bridges() {
		b.syncCarrier()
		b.Engine.Start()
	}
	return nil
}

// Step runs the next pending event, false when the queue is empty
func (s *Simulator) Step() bool {
	for s.queue.Len() > 0 {
		ev := heap.Pop(&s.queue).(*event)
		if ev.cancelled {
			continue
		}
		s.now = ev.at
		ev.fn()
		return true
	}
	return false
}

func (s *Simulator) peek() *event {
	for s.queue.Len() > 0 {
		ev := s.queue[0]
		if !ev.cancelled {
			return ev
		}
		heap.Pop(&s.queue)
	}
	return nil
}

// RunUntil runs every event due at or before t and leaves the clock at t
func (s *Simulator) RunUntil(t time.Duration) {
	for {
		ev := s.peek()
		if ev == nil || ev.at > t {
			break
		}
		s.Step()
	}
	if t > s.now {
		s.now = t
	}
}

func (s *Simulator) RunFor(d time.Duration) {
	s.RunUntil(s.now + d)
}

// RunUntilQuiet runs until no port changed role or state for quiet, giving up
// at limit.  It returns the time of the last change.
func (s *Simulator) RunUntilQuiet(quiet, limit time.Duration) (time.Duration, bool) {
	last := s.now
	prev := s.signature()
	for {
		ev := s.peek()
		if ev == nil || ev.at > last+quiet {
			s.now = last + quiet
			return last, true
		}
		if ev.at > limit {
			s.now = limit
			return last, false
		}
		s.Step()
		if sig := s.signature(); sig != prev {
			prev = sig
			last = s.now
		}
	}
}

func (s *Simulator) signature() string {
	var sb strings.Builder
	for _, name := range s.order {
		b := s.bridges[name]
		sb.WriteString(name)
		b.Engine.Ports().ForEachPort(func(p *stp.StpPort) {
			sb.WriteByte(' ')
			sb.WriteString(p.Role.String())
			sb.WriteByte('/')
			sb.WriteString(p.State.String())
		})
		sb.WriteByte(';')
	}
	return sb.String()
}
