// segment.go
package sim

import (
	"github.com/pkg/errors"
	stp "github.com/oshothebig/l2/stp/protocol"
	"time"
)

type endpoint struct {
	bridge *Bridge
	port   stp.InterfaceId
}

// Segment is a point to point link or, with more than two ends, a shared LAN
type Segment struct {
	Name  string
	Delay time.Duration
	ends  []endpoint
	up    bool
}

func (seg *Segment) shared() bool { return len(seg.ends) > 2 }

func (seg *Segment) Up() bool { return seg.up }

// Port names one end of a segment
type Port struct {
	Bridge string
	Port   stp.InterfaceId
}

// Connect attaches the given ports to a new segment.  It has to be called
// before Start.
func (s *Simulator) Connect(name string, delay time.Duration, ports ...Port) (*Segment, error) {
	if s.started {
		return nil, errors.New("topology is fixed once the simulator is started")
	}
	if _, ok := s.segments[name]; ok {
		return nil, errors.Errorf("segment %q already exists", name)
	}
	if len(ports) < 2 {
		return nil, errors.Errorf("segment %q needs at least two ends", name)
	}
	if delay <= 0 {
		return nil, errors.Errorf("segment %q delay must be positive", name)
	}
	seg := &Segment{Name: name, Delay: delay, up: true}
	for _, p := range ports {
		b, ok := s.bridges[p.Bridge]
		if !ok {
			return nil, errors.Errorf("segment %q: unknown bridge %q", name, p.Bridge)
		}
		if !b.Engine.Ports().Has(p.Port) {
			return nil, errors.Errorf("segment %q: bridge %q has no port %d", name, p.Bridge, p.Port)
		}
		if other, ok := b.attach[p.Port]; ok {
			return nil, errors.Errorf("segment %q: %s:%d already on %q", name, p.Bridge, p.Port, other.Name)
		}
		seg.ends = append(seg.ends, endpoint{bridge: b, port: p.Port})
	}
	for _, end := range seg.ends {
		end.bridge.attach[end.port] = seg
	}
	s.segments[name] = seg
	s.segOrder = append(s.segOrder, name)
	return seg, nil
}

func (s *Simulator) LinkDown(name string) error {
	return s.setLink(name, false)
}

func (s *Simulator) LinkUp(name string) error {
	return s.setLink(name, true)
}

func (s *Simulator) setLink(name string, up bool) error {
	seg, ok := s.segments[name]
	if !ok {
		return errors.Errorf("unknown segment %q", name)
	}
	if seg.up == up {
		return nil
	}
	seg.up = up
	s.emit(Trace{Kind: TraceEvent, Detail: linkDetail(name, up)})
	for _, end := range seg.ends {
		if end.bridge.up {
			end.bridge.Engine.OnCarrierChanged(end.port, end.bridge.carrier(end.port))
		}
	}
	return nil
}

func linkDetail(name string, up bool) string {
	if up {
		return "link " + name + " up"
	}
	return "link " + name + " down"
}

// BridgeDown powers a bridge off, its point to point neighbours lose carrier
func (s *Simulator) BridgeDown(name string) error {
	b, ok := s.bridges[name]
	if !ok {
		return errors.Errorf("unknown bridge %q", name)
	}
	if !b.up {
		return nil
	}
	s.emit(Trace{Bridge: name, Kind: TraceEvent, Detail: "bridge down"})
	b.stop()
	for _, peer := range b.peers() {
		if peer.bridge.up {
			peer.bridge.Engine.OnCarrierChanged(peer.port, peer.bridge.carrier(peer.port))
		}
	}
	return nil
}

func (s *Simulator) BridgeUp(name string) error {
	b, ok := s.bridges[name]
	if !ok {
		return errors.Errorf("unknown bridge %q", name)
	}
	if b.up {
		return nil
	}
	s.emit(Trace{Bridge: name, Kind: TraceEvent, Detail: "bridge up"})
	b.start()
	for _, peer := range b.peers() {
		if peer.bridge.up {
			peer.bridge.Engine.OnCarrierChanged(peer.port, peer.bridge.carrier(peer.port))
		}
	}
	return nil
}

// SetPriority changes a bridge priority while it runs
func (s *Simulator) SetPriority(name string, prio uint16) error {
	b, ok := s.bridges[name]
	if !ok {
		return errors.Errorf("unknown bridge %q", name)
	}
	s.emit(Trace{Bridge: name, Kind: TraceEvent, Detail: "priority"})
	return b.Engine.SetBridgePriority(prio)
}
