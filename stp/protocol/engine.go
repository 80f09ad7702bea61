// engine.go
package stp

import (
	"github.com/pkg/errors"
	"net"
	"time"
)

// Engine is one spanning tree instance.  Every call runs to completion and
// must come from a single goroutine.
type Engine interface {
	Start()
	Stop()
	OnBpduReceived(port InterfaceId, src net.HardwareAddr, pdu *Bpdu)
	OnTimerFired(name string)
	OnCarrierChanged(port InterfaceId, up bool)

	Role(port InterfaceId) PortRole
	State(port InterfaceId) PortState
	IsRootBridge() bool
	RootPathCost() uint32
	RootId() BridgeId
	RootAddress() net.HardwareAddr
	RootPortId() (InterfaceId, bool)
	Id() BridgeId
	Ports() *PortDb
	TopologyChangeCount() uint64
	SetBridgePriority(prio uint16) error
}

// Transport sends a BPDU out of a port
type Transport interface {
	SendBpdu(port InterfaceId, dst net.HardwareAddr, pdu *Bpdu)
}

// Scheduler owns the clock.  Timers are named, scheduling a name that is
// already pending replaces it.  Expiry is reported back via OnTimerFired.
type Scheduler interface {
	Now() time.Duration
	ScheduleAt(name string, at time.Duration)
	Cancel(name string)
}

// ForwardingTable is the data plane learning table, the engine only pushes to it
type ForwardingTable interface {
	Flush(port InterfaceId)
	SetAgingTime(d time.Duration)
	ResetDefaultAging()
	CopyTable(from, to InterfaceId)
}

// NewEngine builds the variant selected by c.ForceVersion
func NewEngine(c *StpBridgeConfig, ports []StpPortConfig, col Collaborators) (Engine, error) {
	switch c.ForceVersion {
	case StpForceVersion:
		return NewStpEngine(c, ports, col)
	case RstpForceVersion:
		return NewRstpEngine(c, ports, col)
	}
	return nil, errors.Errorf("Invalid Bridge Force Version %d valid 1 (STP) 2 (RSTP)", c.ForceVersion)
}
