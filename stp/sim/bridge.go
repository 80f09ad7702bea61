// bridge.go
package sim

import (
	"bytes"
	"github.com/pkg/errors"
	"github.com/oshothebig/l2/stp/fdb"
	stp "github.com/oshothebig/l2/stp/protocol"
	"go.uber.org/zap"
	"net"
	"time"
)

// Bridge is one simulated switch, it is the Scheduler and the Transport of
// its engine
type Bridge struct {
	Name   string
	Engine stp.Engine
	Fdb    *fdb.Table

	sim    *Simulator
	addr   net.HardwareAddr
	timers map[string]*event
	attach map[stp.InterfaceId]*Segment
	up     bool

	FramesTx uint64
	FramesRx uint64
	log      *zap.Logger
}

var _ stp.Scheduler = (*Bridge)(nil)
var _ stp.Transport = (*Bridge)(nil)

// AddBridge creates a bridge, its ports are detached until Connect
func (s *Simulator) AddBridge(name string, c *stp.StpBridgeConfig, ports []stp.StpPortConfig) (*Bridge, error) {
	if _, ok := s.bridges[name]; ok {
		return nil, errors.Errorf("bridge %q already exists", name)
	}
	addr, err := net.ParseMAC(c.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "bridge %q", name)
	}
	for _, other := range s.bridges {
		if bytes.Equal(other.addr, addr) {
			return nil, errors.Errorf("bridge %q reuses the address of %q", name, other.Name)
		}
	}
	log := s.log.With(zap.String("sim", name))
	b := &Bridge{
		Name:   name,
		sim:    s,
		addr:   addr,
		timers: make(map[string]*event),
		attach: make(map[stp.InterfaceId]*Segment),
		log:    log,
	}
	b.Fdb = fdb.New(fdb.DefaultAgingTime, log)
	b.Engine, err = stp.NewEngine(c, ports, stp.Collaborators{
		Transport: b,
		Scheduler: b,
		Fdb:       b.Fdb,
		Logger:    log,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bridge %q", name)
	}
	s.bridges[name] = b
	s.order = append(s.order, name)
	return b, nil
}

func (b *Bridge) Address() net.HardwareAddr { return b.addr }

func (b *Bridge) Up() bool { return b.up }

func (b *Bridge) Now() time.Duration { return b.sim.now }

func (b *Bridge) ScheduleAt(name string, at time.Duration) {
	b.Cancel(name)
	var ev *event
	ev = b.sim.schedule(at, func() {
		if b.timers[name] == ev {
			delete(b.timers, name)
		}
		if b.up {
			b.Engine.OnTimerFired(name)
		}
	})
	b.timers[name] = ev
}

func (b *Bridge) Cancel(name string) {
	if ev, ok := b.timers[name]; ok {
		ev.cancelled = true
		delete(b.timers, name)
	}
}

// SendBpdu encodes the frame now and delivers a decoded copy to every other
// end of the segment after the segment delay
func (b *Bridge) SendBpdu(port stp.InterfaceId, dst net.HardwareAddr, pdu *stp.Bpdu) {
	seg := b.attach[port]
	if seg == nil || !seg.up {
		b.sim.emit(Trace{Bridge: b.Name, Port: port, Kind: TraceDrop, Detail: "no link"})
		return
	}
	frame, err := stp.BuildBpduFrame(b.addr, dst, pdu)
	if err != nil {
		b.log.Error("encode bpdu", zap.Error(err))
		return
	}
	b.FramesTx++
	b.sim.emit(Trace{Bridge: b.Name, Port: port, Kind: TraceFrameTx, Detail: pdu.String()})
	for _, end := range seg.ends {
		if end.bridge == b && end.port == port {
			continue
		}
		end := end
		b.sim.schedule(b.sim.now+seg.Delay, func() {
			end.bridge.deliver(seg, end.port, dst, frame)
		})
	}
}

func (b *Bridge) deliver(seg *Segment, port stp.InterfaceId, dst net.HardwareAddr, frame []byte) {
	if !b.up || !seg.up || b.attach[port] != seg {
		return
	}
	if !bytes.Equal(dst, stp.BpduDMAC) && !bytes.Equal(dst, b.addr) {
		return
	}
	pdu, src, err := stp.DecodeBpduFrame(frame)
	if err != nil {
		b.log.Warn("decode bpdu", zap.Error(err))
		return
	}
	b.FramesRx++
	b.sim.emit(Trace{Bridge: b.Name, Port: port, Kind: TraceFrameRx, Detail: pdu.String()})
	b.Engine.OnBpduReceived(port, src, pdu)
}

// carrier reports what the port would see on the wire right now
func (b *Bridge) carrier(port stp.InterfaceId) bool {
	seg := b.attach[port]
	if seg == nil || !seg.up {
		return false
	}
	if seg.shared() {
		return true
	}
	for _, end := range seg.ends {
		if end.bridge != b || end.port != port {
			return end.bridge.up
		}
	}
	return false
}

func (b *Bridge) syncCarrier() {
	for _, id := range b.Engine.Ports().Ids() {
		b.Engine.OnCarrierChanged(id, b.carrier(id))
	}
}

func (b *Bridge) start() {
	b.up = true
	b.syncCarrier()
	b.Engine.Start()
}

func (b *Bridge) stop() {
	b.up = false
	b.Engine.Stop()
	for name := range b.timers {
		b.Cancel(name)
	}
}

// peers are the far ends of the point to point links of b
func (b *Bridge) peers() []endpoint {
	var out []endpoint
	for _, id := range b.Engine.Ports().Ids() {
		seg := b.attach[id]
		if seg == nil || seg.shared() {
			continue
		}
		for _, end := range seg.ends {
			if end.bridge != b {
				out = append(out, end)
			}
		}
	}
	return out
}
