// stp.go
package stp

import (
	"go.uber.org/zap"
	"net"
	"time"
)

// StpEngine is the 802.1D tick driven variant.  Port timers are counted in
// whole ticks, one tick per TickInterval.
type StpEngine struct {
	*Bridge

	// ticks since the last hello sent as root
	helloCount uint16
	// a TCN was sent toward the root and not yet acknowledged
	tcnPending bool
	tcnTimer   uint16
	// root only, end of the topology change period
	tcUntil time.Duration
	// non root, the last BPDU on the root port carried TC
	tcRelay bool
}

func NewStpEngine(c *StpBridgeConfig, ports []StpPortConfig, col Collaborators) (*StpEngine, error) {
	b, err := newBridge(c, ports, col)
	if err != nil {
		return nil, err
	}
	return &StpEngine{Bridge: b}, nil
}

func (e *StpEngine) Start() {
	e.up = true
	e.helloCount = 0
	e.tcnPending = false
	e.tcnTimer = 0
	e.tcUntil = 0
	e.tcRelay = false
	if e.priorityChanged() {
		e.applyPriority()
	}
	e.ports.ForEachPort(func(p *StpPort) {
		e.ports.ResetToDefaults(p.Id)
	})
	e.becomeRoot()
	e.log.Info("stp started")
	e.sched.ScheduleAt(TimerTick, e.now()+TickInterval)
}

func (e *StpEngine) Stop() {
	e.up = false
	e.sched.Cancel(TimerTick)
	e.ports.ForEachPort(func(p *StpPort) {
		e.setRole(p, PortRoleDisabledPort)
	})
	e.log.Info("stp stopped")
}

func (e *StpEngine) OnTimerFired(name string) {
	if !e.up {
		return
	}
	if name != TimerTick {
		e.fatalf("stp unknown timer %q", name)
	}
	e.handleTick()
	e.sched.ScheduleAt(TimerTick, e.now()+TickInterval)
}

func (e *StpEngine) handleTick() {
	if e.IsRootBridge() {
		e.helloCount++
	} else {
		e.helloCount = 0
	}
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleDisabledPort || !p.operational() {
			return
		}
		if p.Role != PortRoleDesignatedPort {
			p.Times.MessageAge++
		}
		if p.Role == PortRoleRootPort || p.Role == PortRoleDesignatedPort {
			p.FdWhile++
		}
	})
	e.checkTimers()
	e.checkParametersChange()
	e.checkTopologyChange()
	e.ports.ForEachPort(func(p *StpPort) {
		p.TxCount = 0
	})
}

func (e *StpEngine) checkTimers() {
	t := e.currentTimes()

	// hello timer
	if e.IsRootBridge() && e.helloCount >= t.HelloTime {
		e.helloCount = 0
		e.sendConfigOnDesignated()
	}

	// message age
	aged := false
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleDisabledPort || p.Role == PortRoleDesignatedPort {
			return
		}
		if p.Times.MessageAge >= p.Times.MaxAge {
			e.log.Info("port info aged out", zap.Int32("port", int32(p.Id)),
				zap.Stringer("designated", p.Pv.DesignatedBridgeId))
			e.ports.ResetToDefaults(p.Id)
			aged = true
		}
	})
	if aged && e.tryRoot() {
		e.topologyChangeDetected(0)
	}

	// forward delay
	t = e.currentTimes()
	e.ports.ForEachPort(func(p *StpPort) {
		switch p.Role {
		case PortRoleRootPort, PortRoleDesignatedPort:
			if p.State == PortStateForwarding || p.FdWhile < t.ForwardingDelay {
				return
			}
			p.FdWhile = 0
			if p.State == PortStateDiscarding {
				e.setState(p, PortStateLearning)
			} else {
				e.setState(p, PortStateForwarding)
			}
		case PortRoleAlternatePort, PortRoleBackupPort, PortRoleUnassigned:
			p.FdWhile = 0
			e.setState(p, PortStateDiscarding)
		case PortRoleDisabledPort:
		default:
			e.fatalf("port %d invalid role %d", p.Id, int(p.Role))
		}
	})

	// TCN retransmission until acknowledged
	if e.tcnPending && !e.IsRootBridge() {
		e.tcnTimer++
		if e.tcnTimer >= t.HelloTime {
			e.sendTcn()
		}
	}
}

func (e *StpEngine) checkParametersChange() {
	if !e.priorityChanged() {
		return
	}
	e.applyPriority()
	// anything carrying our address was learnt under the old identity
	e.ports.ForEachPort(func(p *StpPort) {
		if e.isOwnAddress(p.Pv.RootBridgeId) || e.isOwnAddress(p.Pv.DesignatedBridgeId) {
			e.ports.ResetInfo(p.Id)
		}
	})
	if e.tryRoot() {
		e.topologyChangeDetected(0)
	}
}

func (e *StpEngine) checkTopologyChange() {
	if e.tcUntil != 0 && e.now() >= e.tcUntil {
		e.tcUntil = 0
		e.fdb.ResetDefaultAging()
		e.log.Debug("topology change period over")
	}
}

// tryRoot elects the root port and reassigns every other role, it reports
// whether the root port changed
func (e *StpEngine) tryRoot() bool {
	oldRoot, hadRoot := e.RootPortId()

	var best *StpPort
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleDisabledPort || !p.operational() {
			return
		}
		if p.Pv.DesignatedBridgeId == e.BridgeIdentifier {
			return
		}
		if CompareBridgeId(p.Pv.RootBridgeId, e.BridgeIdentifier) >= 0 {
			return
		}
		if best == nil {
			best = p
			return
		}
		switch ComparePriorityVector(&p.Pv, &best.Pv) {
		case CompareBetter:
			best = p
		case CompareEqual:
			if p.Priority < best.Priority {
				best = p
			}
		}
	})

	if best == nil {
		e.becomeRoot()
		return hadRoot
	}

	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleRootPort && p != best {
			e.setRole(p, PortRoleUnassigned)
		}
	})
	if best.Role != PortRoleRootPort {
		e.setRole(best, PortRoleRootPort)
	}
	e.selectDesignatedPorts()

	return !hadRoot || oldRoot != best.Id
}

func (e *StpEngine) becomeRoot() {
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleRootPort {
			e.setRole(p, PortRoleUnassigned)
		}
	})
	e.selectDesignatedPorts()
}

// 17.21.25 every port but the root port is designated unless the LAN
// already has a better designated port
func (e *StpEngine) selectDesignatedPorts() {
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleDisabledPort || p.Role == PortRoleRootPort {
			return
		}
		adv := e.advertisedVector(p)
		if p.Pv.DesignatedBridgeId == e.BridgeIdentifier && p.Pv.DesignatedPortId == p.portId() {
			p.Pv = adv
			e.setRole(p, PortRoleDesignatedPort)
			return
		}
		switch ComparePriorityVector(&adv, &p.Pv) {
		case CompareBetter:
			p.Pv = adv
			if p.Role != PortRoleDesignatedPort {
				p.Times = e.currentTimes()
				p.Times.MessageAge = 0
			}
			e.setRole(p, PortRoleDesignatedPort)
		case CompareWorse:
			if p.Pv.DesignatedBridgeId == e.BridgeIdentifier {
				e.setRole(p, PortRoleBackupPort)
			} else {
				e.setRole(p, PortRoleAlternatePort)
			}
			p.FdWhile = 0
			e.setState(p, PortStateDiscarding)
		case CompareEqual:
			if p.Role == PortRoleUnassigned {
				e.setRoleState(p, PortRoleAlternatePort, PortStateDiscarding)
			}
		}
	})
}

func (e *StpEngine) OnBpduReceived(id InterfaceId, src net.HardwareAddr, pdu *Bpdu) {
	p := e.ports.Get(id)
	if !e.up || !p.operational() || p.Role == PortRoleDisabledPort {
		return
	}
	p.BpduRx++
	if p.OperEdge {
		e.log.Info("edge port received bpdu", zap.Int32("port", int32(p.Id)))
		p.OperEdge = false
	}
	switch pdu.Kind {
	case BpduKindConfig:
		e.handleConfig(p, pdu)
	case BpduKindTcn:
		e.handleTcn(p, src)
	default:
		e.fatalf("port %d invalid bpdu kind %d", p.Id, int(pdu.Kind))
	}
}

func (e *StpEngine) handleConfig(p *StpPort, pdu *Bpdu) {
	if pdu.TopologyChangeAck && p.Role == PortRoleRootPort && e.tcnPending {
		e.log.Debug("tcn acknowledged", zap.Int32("port", int32(p.Id)))
		e.tcnPending = false
		e.tcnTimer = 0
	}
	if pdu.MessageAge >= pdu.MaxAge {
		return
	}
	msg := pdu.PriorityVector
	msg.RootPathCost += p.LinkCost

	// stale information about a previous identity of ours
	if e.isOwnAddress(msg.RootBridgeId) && msg.RootBridgeId != e.BridgeIdentifier {
		return
	}

	cmp := ComparePriorityVector(&msg, &p.Pv)
	if p.Role == PortRoleDesignatedPort {
		switch cmp {
		case CompareWorse:
			// inferior BPDU, defend the segment
			e.send(p, BpduDMAC, e.generateBpdu(p, false, false))
			return
		case CompareEqual:
			return
		}
	} else if cmp == CompareWorse {
		sameSource := p.Pv.DesignatedBridgeId == msg.DesignatedBridgeId &&
			p.Pv.DesignatedPortId == msg.DesignatedPortId
		if !sameSource {
			return
		}
	}
	// superior information restarts the port whatever its role
	if cmp == CompareBetter {
		p.FdWhile = 0
		e.setState(p, PortStateDiscarding)
	}

	p.Pv = msg
	p.Times = pdu.Times
	if e.tryRoot() {
		e.topologyChangeDetected(0)
	}

	if p.Role != PortRoleRootPort {
		return
	}
	if pdu.TopologyChange {
		e.fdb.SetAgingTime(seconds(pdu.ForwardingDelay))
		e.tcRelay = true
	} else if e.tcRelay {
		e.fdb.ResetDefaultAging()
		e.tcRelay = false
	}
	e.sendConfigOnDesignated()
}

func (e *StpEngine) handleTcn(p *StpPort, src net.HardwareAddr) {
	if p.Role != PortRoleDesignatedPort {
		return
	}
	e.log.Debug("tcn received", zap.Int32("port", int32(p.Id)), zap.Stringer("src", src))
	e.send(p, src, e.generateBpdu(p, false, true))
	if e.IsRootBridge() {
		e.startTcPeriod()
	} else {
		e.tcnPending = true
		e.sendTcn()
	}
}

func (e *StpEngine) startTcPeriod() {
	t := e.currentTimes()
	e.tcUntil = e.now() + seconds(t.MaxAge+t.ForwardingDelay)
	e.fdb.SetAgingTime(seconds(t.ForwardingDelay))
}

func (e *StpEngine) sendTcn() {
	e.tcnTimer = 0
	if r := e.rootPort(); r != nil {
		e.send(r, BpduDMAC, NewTcnBpdu())
	}
}

func (e *StpEngine) sendConfigOnDesignated() {
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role == PortRoleDesignatedPort && p.operational() {
			e.send(p, BpduDMAC, e.generateBpdu(p, false, false))
		}
	})
}

func (e *StpEngine) generateBpdu(p *StpPort, tc, tca bool) *Bpdu {
	rv := e.rootVector()
	t := e.currentTimes()
	root := e.IsRootBridge()
	age := uint16(0)
	if r := e.rootPort(); r != nil {
		age = r.Times.MessageAge + 1
	}
	now := e.now()
	return &Bpdu{
		Kind: BpduKindConfig,
		PriorityVector: PriorityVector{
			RootBridgeId:       rv.RootBridgeId,
			RootPathCost:       rv.RootPathCost,
			DesignatedBridgeId: e.BridgeIdentifier,
			DesignatedPortId:   p.portId(),
		},
		Times: Times{
			ForwardingDelay: t.ForwardingDelay,
			HelloTime:       t.HelloTime,
			MaxAge:          t.MaxAge,
			MessageAge:      age,
		},
		TopologyChange:    tc || (root && now < e.tcUntil) || (!root && e.tcRelay) || now < p.TcWhile,
		TopologyChangeAck: tca,
		Version:           StpProtocolVersion,
		Role:              p.Role,
		Learning:          p.State == PortStateLearning,
		Forwarding:        p.State == PortStateForwarding,
	}
}

// topologyChangeDetected flushes every active port but except, 0 means none
func (e *StpEngine) topologyChangeDetected(except InterfaceId) {
	e.TopologyChanges++
	t := e.currentTimes()
	deadline := e.now() + seconds(t.MaxAge+t.ForwardingDelay)
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Id == except || p.Role == PortRoleDisabledPort || !p.operational() {
			return
		}
		e.fdb.Flush(p.Id)
		p.TcWhile = deadline
	})
	e.log.Info("topology change detected", zap.Int32("port", int32(except)))
	if e.IsRootBridge() {
		e.startTcPeriod()
	} else {
		e.tcnPending = true
		e.sendTcn()
	}
}

func (e *StpEngine) OnCarrierChanged(id InterfaceId, up bool) {
	p := e.ports.Get(id)
	if p.Carrier == up {
		return
	}
	p.Carrier = up
	e.log.Info("carrier changed", zap.Int32("port", int32(id)), zap.Bool("up", up))
	if !e.up {
		return
	}
	if up {
		e.ports.ResetToDefaults(id)
		if e.tryRoot() {
			e.topologyChangeDetected(0)
		}
		return
	}
	wasActive := p.State == PortStateForwarding || p.Role == PortRoleRootPort
	e.fdb.Flush(id)
	e.ports.ResetToDefaults(id)
	if e.tryRoot() || wasActive {
		e.topologyChangeDetected(id)
	}
}
