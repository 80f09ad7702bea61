// rstp.go
package stp

import (
	"go.uber.org/zap"
	"net"
	"time"
)

// RstpEngine is the 802.1w event driven variant.  Ports upgrade on their own
// deadlines instead of a shared tick, a single upgrade timer always points at
// the earliest of them.
type RstpEngine struct {
	*Bridge
}

func NewRstpEngine(c *StpBridgeConfig, ports []StpPortConfig, col Collaborators) (*RstpEngine, error) {
	b, err := newBridge(c, ports, col)
	if err != nil {
		return nil, err
	}
	return &RstpEngine{Bridge: b}, nil
}

func (e *RstpEngine) Start() {
	e.up = true
	if e.priorityChanged() {
		e.applyPriority()
	}
	e.initPorts()
	e.log.Info("rstp started")
	e.sched.ScheduleAt(TimerHello, e.now())
}

func (e *RstpEngine) Stop() {
	e.up = false
	e.sched.Cancel(TimerHello)
	e.sched.Cancel(TimerUpgrade)
	e.ports.ForEachPort(func(p *StpPort) {
		e.setRole(p, PortRoleDisabledPort)
	})
	e.log.Info("rstp stopped")
}

func (e *RstpEngine) SetBridgePriority(prio uint16) error {
	if err := e.Bridge.SetBridgePriority(prio); err != nil {
		return err
	}
	if !e.priorityChanged() {
		return nil
	}
	e.applyPriority()
	if e.up {
		e.initPorts()
		e.sendBpdus()
	}
	return nil
}

func (e *RstpEngine) tcWhileTime() time.Duration {
	return seconds(e.BridgeTimes.HelloTime + 1)
}

// initPorts restarts the contest from scratch, this bridge is root until
// told otherwise
func (e *RstpEngine) initPorts() {
	now := e.now()
	e.ports.ForEachPort(func(p *StpPort) {
		e.ports.ResetToDefaults(p.Id)
		if p.Role == PortRoleUnassigned {
			p.NextUpgrade = now + seconds(e.MigrateTime)
		}
		e.fdb.Flush(p.Id)
	})
	e.scheduleNextUpgrade()
}

func (e *RstpEngine) upgradeCandidate(p *StpPort) bool {
	if !p.operational() {
		return false
	}
	return p.Role == PortRoleUnassigned ||
		(p.Role == PortRoleDesignatedPort && p.State != PortStateForwarding)
}

// scheduleNextUpgrade keeps the single upgrade timer on the earliest deadline
func (e *RstpEngine) scheduleNextUpgrade() {
	var next time.Duration
	found := false
	e.ports.ForEachPort(func(p *StpPort) {
		if !e.upgradeCandidate(p) {
			return
		}
		if !found || p.NextUpgrade < next {
			next = p.NextUpgrade
			found = true
		}
	})
	if found {
		e.sched.ScheduleAt(TimerUpgrade, next)
	} else {
		e.sched.Cancel(TimerUpgrade)
	}
}

func (e *RstpEngine) OnTimerFired(name string) {
	if !e.up {
		return
	}
	switch name {
	case TimerHello:
		e.handleHello()
	case TimerUpgrade:
		e.handleUpgrade()
	default:
		e.fatalf("rstp unknown timer %q", name)
	}
}

func (e *RstpEngine) handleUpgrade() {
	now := e.now()
	fwd := seconds(e.BridgeTimes.ForwardingDelay)
	e.ports.ForEachPort(func(p *StpPort) {
		if !e.upgradeCandidate(p) || p.NextUpgrade > now {
			return
		}
		switch {
		case p.Role == PortRoleUnassigned:
			e.setRoleState(p, PortRoleDesignatedPort, PortStateDiscarding)
			p.NextUpgrade = now + fwd
		case p.State == PortStateDiscarding:
			e.setState(p, PortStateLearning)
			p.NextUpgrade = now + fwd
		case p.State == PortStateLearning:
			e.setState(p, PortStateForwarding)
			e.flushOtherPorts(p.Id)
		}
	})
	e.scheduleNextUpgrade()
}

func (e *RstpEngine) handleHello() {
	e.ports.ForEachPort(func(p *StpPort) {
		if p.OperEdge || !p.operational() {
			return
		}
		switch p.Role {
		case PortRoleRootPort, PortRoleAlternatePort, PortRoleBackupPort:
		default:
			return
		}
		p.LostBpdu++
		if p.LostBpdu < LostBpduLimit {
			return
		}
		e.log.Info("port lost bpdus", zap.Int32("port", int32(p.Id)), zap.Stringer("role", p.Role))
		if p.Role == PortRoleRootPort {
			if alt := e.bestAlternate(); alt != nil {
				e.fdb.CopyTable(p.Id, alt.Id)
				e.makeDesignated(p)
				e.ports.ResetInfo(p.Id)
				e.setRoleState(alt, PortRoleRootPort, PortStateForwarding)
				alt.LostBpdu = 0
				e.flushOtherPorts(alt.Id)
			} else {
				e.initPorts()
			}
		} else {
			e.makeDesignated(p)
			e.ports.ResetInfo(p.Id)
		}
		p.LostBpdu = 0
	})
	e.recontestDesignated()
	e.ports.ForEachPort(func(p *StpPort) {
		p.TxCount = 0
	})
	e.scheduleNextUpgrade()
	e.sendBpdus()
	e.sendTcnToRoot()
	e.sched.ScheduleAt(TimerHello, e.now()+seconds(e.BridgeTimes.HelloTime))
}

func (e *RstpEngine) OnBpduReceived(id InterfaceId, src net.HardwareAddr, pdu *Bpdu) {
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
	case BpduKindTcn:
		// legacy bridge below us
		if p.State == PortStateForwarding {
			e.propagateTc(p)
		}
	case BpduKindConfig:
		if pdu.MessageAge >= e.BridgeTimes.MaxAge {
			e.log.Debug("expired bpdu", zap.Int32("port", int32(p.Id)))
			return
		}
		if pdu.TopologyChange && p.State == PortStateForwarding {
			e.propagateTc(p)
		}
		if e.isOwnAddress(pdu.DesignatedBridgeId) {
			e.handleBackup(p, pdu)
		} else {
			e.processBpdu(p, pdu)
		}
	default:
		e.fatalf("port %d invalid bpdu kind %d", p.Id, int(pdu.Kind))
	}
	e.scheduleNextUpgrade()
}

// propagateTc flushes and arms tcWhile on every port but the one the change
// was learnt on
func (e *RstpEngine) propagateTc(from *StpPort) {
	e.log.Debug("tc received", zap.Int32("port", int32(from.Id)))
	deadline := e.now() + e.tcWhileTime()
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Id == from.Id {
			return
		}
		e.fdb.Flush(p.Id)
		p.TcWhile = deadline
	})
}

// two ports of this bridge hear each other, the better port id keeps the LAN
func (e *RstpEngine) handleBackup(p *StpPort, pdu *Bpdu) {
	switch c := ComparePortId(pdu.DesignatedPortId, p.portId()); {
	case c < 0:
		e.fdb.Flush(p.Id)
		e.setRoleState(p, PortRoleBackupPort, PortStateDiscarding)
		p.LostBpdu = 0
	case c > 0:
		sid := InterfaceId(pdu.DesignatedPortId.Num)
		if !e.ports.Has(sid) {
			e.log.Warn("own bpdu from unknown port", zap.Int32("port", int32(p.Id)),
				zap.Uint32("sender", pdu.DesignatedPortId.Num))
			return
		}
		q := e.ports.Get(sid)
		e.fdb.Flush(q.Id)
		e.setRoleState(q, PortRoleBackupPort, PortStateDiscarding)
		q.LostBpdu = 0
	default:
		e.log.Warn("own bpdu looped back, disabling port", zap.Int32("port", int32(p.Id)))
		e.fdb.Flush(p.Id)
		e.setRole(p, PortRoleDisabledPort)
	}
}

func msgVector(p *StpPort, pdu *Bpdu) PriorityVector {
	v := pdu.PriorityVector
	v.RootPathCost += p.LinkCost
	return v
}

func (e *RstpEngine) processBpdu(p *StpPort, pdu *Bpdu) {
	msg := msgVector(p, pdu)
	// a root never takes part in a loop carrying its own address
	if e.isOwnAddress(msg.RootBridgeId) {
		return
	}
	flood := false
	if CompareRstp(&p.Pv, &msg) > RstpSimilar {
		flood = e.processBetterSource(p, pdu)
	} else if CompareBridgeAddr(GetBridgeAddrFromBridgeId(msg.DesignatedBridgeId),
		GetBridgeAddrFromBridgeId(p.Pv.DesignatedBridgeId)) == 0 {
		flood = e.processSameSource(p, pdu)
	}
	e.recontestDesignated()
	if flood {
		e.sendBpdus()
		e.sendTcnToRoot()
	}
}

func (e *RstpEngine) processBetterSource(p *StpPort, pdu *Bpdu) bool {
	msg := msgVector(p, pdu)
	r := e.rootPort()
	res := RstpSimilar
	if r != nil {
		res = CompareRstp(&r.Pv, &msg)
	}
	e.updateInfo(p, pdu)

	if r == nil {
		e.log.Debug("no root port, taking arrival port", zap.Int32("port", int32(p.Id)))
		e.setRoleState(p, PortRoleRootPort, PortStateForwarding)
		e.flushOtherPorts(p.Id)
		return true
	}
	if r == p {
		// the root port itself got better information
		if res == RstpBetterRoot {
			e.rootChange(p)
		}
		return true
	}

	switch res {
	case RstpSimilar:
		// parallel links to the same designated port, the better local port wins
		if ComparePortId(r.portId(), p.portId()) < 0 {
			e.fdb.Flush(p.Id)
			e.setRoleState(p, PortRoleAlternatePort, PortStateDiscarding)
			return false
		}
		e.fdb.CopyTable(r.Id, p.Id)
		if p.State != PortStateForwarding {
			e.flushOtherPorts(p.Id)
		} else {
			e.fdb.Flush(r.Id)
		}
		e.setRoleState(r, PortRoleAlternatePort, PortStateDiscarding)
		e.setRoleState(p, PortRoleRootPort, PortStateForwarding)
	case RstpBetterRoot:
		e.rootChange(p)
		return true
	case RstpBetterRpc, RstpBetterSrc, RstpBetterPort:
		e.fdb.CopyTable(r.Id, p.Id)
		if p.State != PortStateForwarding {
			e.flushOtherPorts(p.Id)
		}
		e.setRole(r, PortRoleAlternatePort)
		e.setRoleState(p, PortRoleRootPort, PortStateForwarding)
		if e.contestPort(p, r) >= RstpSimilar {
			e.setState(r, PortStateDiscarding)
			e.fdb.Flush(r.Id)
		} else {
			e.makeDesignated(r)
		}
		return true
	case RstpWorseRoot:
		e.sendBpdu(p)
	case RstpWorseRpc, RstpWorseSrc, RstpWorsePort:
		if e.contestMsg(r, p, pdu) < RstpSimilar {
			if p.Role != PortRoleDesignatedPort {
				e.makeDesignated(p)
			}
			e.sendBpdu(p)
		} else {
			e.fdb.Flush(p.Id)
			e.setRoleState(p, PortRoleAlternatePort, PortStateDiscarding)
		}
	}
	return false
}

// rootChange a better root appeared on p, every other port starts over
func (e *RstpEngine) rootChange(p *StpPort) {
	e.log.Info("root changed", zap.Int32("port", int32(p.Id)), zap.Stringer("root", p.Pv.RootBridgeId))
	e.TopologyChanges++
	now := e.now()
	e.ports.ForEachPort(func(q *StpPort) {
		if q.OperEdge {
			return
		}
		if p.State != PortStateForwarding {
			q.TcWhile = now + e.tcWhileTime()
		}
		e.fdb.Flush(q.Id)
		if q == p || q.Role == PortRoleDisabledPort {
			return
		}
		e.setRoleState(q, PortRoleUnassigned, PortStateDiscarding)
		q.NextUpgrade = now + seconds(e.MigrateTime)
		e.ports.ResetInfo(q.Id)
	})
	e.setRoleState(p, PortRoleRootPort, PortStateForwarding)
	p.LostBpdu = 0
}

func (e *RstpEngine) processSameSource(p *StpPort, pdu *Bpdu) bool {
	msg := msgVector(p, pdu)
	switch res := CompareRstp(&p.Pv, &msg); res {
	case RstpSimilar:
		p.LostBpdu = 0
		p.Times.MessageAge = pdu.MessageAge + 1
	case RstpWorseRoot:
		switch p.Role {
		case PortRoleRootPort:
			if alt := e.bestAlternate(); alt != nil {
				e.log.Info("root lost, alternate takes over", zap.Int32("port", int32(p.Id)),
					zap.Int32("alternate", int32(alt.Id)))
				e.makeDesignated(p)
				e.fdb.CopyTable(p.Id, alt.Id)
				e.flushOtherPorts(alt.Id)
				e.setRoleState(alt, PortRoleRootPort, PortStateForwarding)
				e.updateInfo(p, pdu)
				e.sendBpdu(p)
				return false
			}
			e.log.Info("root lost, no alternate", zap.Int32("port", int32(p.Id)))
			e.initPorts()
			if CompareRstp(&p.Pv, &msg) > RstpSimilar {
				e.updateInfo(p, pdu)
				e.setRoleState(p, PortRoleRootPort, PortStateForwarding)
			}
			return true
		case PortRoleAlternatePort:
			e.makeDesignated(p)
			e.updateInfo(p, pdu)
			e.sendBpdu(p)
		case PortRoleDesignatedPort:
			e.updateInfo(p, pdu)
		}
	case RstpWorseRpc, RstpWorseSrc, RstpWorsePort:
		switch p.Role {
		case PortRoleRootPort:
			p.LostBpdu = 0
			if alt := e.bestAlternate(); alt != nil && CompareRstp(&alt.Pv, &msg) < RstpSimilar {
				e.fdb.CopyTable(p.Id, alt.Id)
				e.setRole(p, PortRoleDesignatedPort)
				e.setRoleState(alt, PortRoleRootPort, PortStateForwarding)
				if e.contestMsg(alt, p, pdu) < RstpSimilar {
					e.makeDesignated(p)
				} else {
					e.setRoleState(p, PortRoleAlternatePort, PortStateDiscarding)
				}
				e.flushOtherPorts(alt.Id)
			}
			e.updateInfo(p, pdu)
			return true
		case PortRoleAlternatePort:
			if r := e.rootPort(); r != nil && e.contestMsg(r, p, pdu) < RstpSimilar {
				e.makeDesignated(p)
				e.sendBpdu(p)
			} else {
				p.LostBpdu = 0
			}
		}
		e.updateInfo(p, pdu)
	}
	return false
}

func (e *RstpEngine) updateInfo(p *StpPort, pdu *Bpdu) {
	p.Pv = msgVector(p, pdu)
	p.Times = pdu.Times
	p.Times.MessageAge = pdu.MessageAge + 1
	p.LostBpdu = 0
}

func (e *RstpEngine) makeDesignated(p *StpPort) {
	e.setRoleState(p, PortRoleDesignatedPort, PortStateDiscarding)
	p.NextUpgrade = e.now() + seconds(e.BridgeTimes.ForwardingDelay)
}

// recontestDesignated gives up designated ports whose stored information
// from another bridge beats what this bridge now advertises there, which
// happens once the root path got worse
func (e *RstpEngine) recontestDesignated() {
	r := e.rootPort()
	if r == nil {
		return
	}
	e.ports.ForEachPort(func(p *StpPort) {
		if p == r || p.Role != PortRoleDesignatedPort || p.OperEdge || !p.operational() {
			return
		}
		// a better root than ours would have been taken already, such info is stale
		if e.isOwnAddress(p.Pv.DesignatedBridgeId) || p.Pv.RootBridgeId != r.Pv.RootBridgeId {
			return
		}
		if e.contestPort(r, p) > RstpSimilar {
			e.log.Info("designated port superseded", zap.Int32("port", int32(p.Id)),
				zap.Stringer("designated", p.Pv.DesignatedBridgeId))
			e.fdb.Flush(p.Id)
			e.setRoleState(p, PortRoleAlternatePort, PortStateDiscarding)
			p.LostBpdu = 0
		}
	})
}

// contestPort compares what this bridge would advertise on r, reaching the
// root through root, against what r has stored
func (e *RstpEngine) contestPort(root, r *StpPort) RstpCompareResult {
	own := PriorityVector{
		RootBridgeId:       root.Pv.RootBridgeId,
		RootPathCost:       root.Pv.RootPathCost + r.LinkCost,
		DesignatedBridgeId: e.BridgeIdentifier,
		DesignatedPortId:   r.portId(),
	}
	return CompareRstp(&own, &r.Pv)
}

// contestMsg compares what this bridge would advertise on p against the
// sender's own advertisement
func (e *RstpEngine) contestMsg(root, p *StpPort, pdu *Bpdu) RstpCompareResult {
	own := PriorityVector{
		RootBridgeId:       root.Pv.RootBridgeId,
		RootPathCost:       root.Pv.RootPathCost,
		DesignatedBridgeId: e.BridgeIdentifier,
		DesignatedPortId:   p.portId(),
	}
	raw := pdu.PriorityVector
	return CompareRstp(&own, &raw)
}

func (e *RstpEngine) bestAlternate() *StpPort {
	var best *StpPort
	e.ports.ForEachPort(func(p *StpPort) {
		if p.Role != PortRoleAlternatePort || !p.operational() {
			return
		}
		if best == nil || CompareRstp(&best.Pv, &p.Pv) > RstpSimilar {
			best = p
		}
	})
	return best
}

// flushOtherPorts a port started forwarding, everything else learnt may be wrong
func (e *RstpEngine) flushOtherPorts(keep InterfaceId) {
	e.TopologyChanges++
	deadline := e.now() + e.tcWhileTime()
	e.ports.ForEachPort(func(p *StpPort) {
		p.TcWhile = deadline
		if p.Id != keep {
			e.fdb.Flush(p.Id)
		}
	})
}

func (e *RstpEngine) sendBpdus() {
	e.ports.ForEachPort(func(p *StpPort) {
		switch p.Role {
		case PortRoleRootPort, PortRoleAlternatePort, PortRoleBackupPort, PortRoleDisabledPort:
			return
		}
		if p.OperEdge || !p.operational() {
			return
		}
		e.sendBpdu(p)
	})
}

func (e *RstpEngine) sendBpdu(p *StpPort) {
	if p.Role == PortRoleDisabledPort {
		return
	}
	pv := PriorityVector{
		RootBridgeId:       e.BridgeIdentifier,
		RootPathCost:       0,
		DesignatedBridgeId: e.BridgeIdentifier,
		DesignatedPortId:   p.portId(),
	}
	age := uint16(0)
	if r := e.rootPort(); r != nil {
		pv.RootBridgeId = r.Pv.RootBridgeId
		pv.RootPathCost = r.Pv.RootPathCost
		age = r.Times.MessageAge
	}
	t := e.BridgeTimes
	t.MessageAge = age
	pdu := &Bpdu{
		Kind:           BpduKindConfig,
		PriorityVector: pv,
		Times:          t,
		TopologyChange: e.now() < p.TcWhile,
		Version:        RstpProtocolVersion,
		Role:           p.Role,
		Learning:       p.State == PortStateLearning,
		Forwarding:     p.State == PortStateForwarding,
	}
	e.send(p, BpduDMAC, pdu)
}

// sendTcnToRoot tells the root side while tcWhile runs on the root port
func (e *RstpEngine) sendTcnToRoot() {
	r := e.rootPort()
	if r == nil || e.now() >= r.TcWhile {
		return
	}
	e.sendBpdu(r)
}

func (e *RstpEngine) OnCarrierChanged(id InterfaceId, up bool) {
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
		if p.Role == PortRoleUnassigned {
			p.NextUpgrade = e.now() + seconds(e.MigrateTime)
		}
		e.fdb.Flush(id)
	} else {
		wasRoot := p.Role == PortRoleRootPort
		wasForwarding := p.State == PortStateForwarding
		var alt *StpPort
		if wasRoot {
			if alt = e.bestAlternate(); alt != nil {
				e.fdb.CopyTable(id, alt.Id)
			}
		}
		e.fdb.Flush(id)
		e.ports.ResetToDefaults(id)
		switch {
		case alt != nil:
			e.setRoleState(alt, PortRoleRootPort, PortStateForwarding)
			alt.LostBpdu = 0
			e.flushOtherPorts(alt.Id)
		case wasRoot:
			e.initPorts()
		case wasForwarding:
			e.flushOtherPorts(id)
		}
		e.recontestDesignated()
	}
	e.scheduleNextUpgrade()
	e.sendBpdus()
	e.sendTcnToRoot()
}
