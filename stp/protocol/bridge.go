// bridge.go
package stp

import (
	"bytes"
	"fmt"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"net"
	"sort"
	"time"
)

type BridgeId [8]uint8

type InterfaceId int32

type PortId struct {
	Priority uint16
	Num      uint32
}

type PriorityVector struct {
	RootBridgeId       BridgeId
	RootPathCost       uint32
	DesignatedBridgeId BridgeId
	DesignatedPortId   PortId
}

type Times struct {
	ForwardingDelay uint16
	HelloTime       uint16
	MaxAge          uint16
	MessageAge      uint16
}

func CreateBridgeId(bridgeAddress [6]uint8, bridgePriority uint16) BridgeId {
	return BridgeId{uint8(bridgePriority >> 8 & 0xff),
		uint8(bridgePriority & 0xff),
		bridgeAddress[0],
		bridgeAddress[1],
		bridgeAddress[2],
		bridgeAddress[3],
		bridgeAddress[4],
		bridgeAddress[5]}

}

func CreateBridgeIdStr(bId BridgeId) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		bId[0],
		bId[1],
		bId[2],
		bId[3],
		bId[4],
		bId[5],
		bId[6],
		bId[7])
}

func GetBridgeAddrFromBridgeId(b BridgeId) [6]uint8 {
	return [6]uint8{
		b[2],
		b[3],
		b[4],
		b[5],
		b[6],
		b[7],
	}
}

func GetBridgePriorityFromBridgeId(b BridgeId) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func (b BridgeId) String() string { return CreateBridgeIdStr(b) }

func (b BridgeId) Priority() uint16 { return GetBridgePriorityFromBridgeId(b) }

func (b BridgeId) Address() net.HardwareAddr {
	a := GetBridgeAddrFromBridgeId(b)
	return net.HardwareAddr(a[:])
}

func (p PortId) String() string { return fmt.Sprintf("%d.%d", p.Priority, p.Num) }

// Compare BridgeId
// 0 == equal
// > 0 == b1 inferior (numerically greater)
// < 0 == b1 superior
func CompareBridgeId(b1 BridgeId, b2 BridgeId) int {
	return bytes.Compare(b1[:], b2[:])
}

func CompareBridgeAddr(a1 [6]uint8, a2 [6]uint8) int {
	return bytes.Compare(a1[:], a2[:])
}

func ComparePortId(p1 PortId, p2 PortId) int {
	switch {
	case p1.Priority < p2.Priority:
		return -1
	case p1.Priority > p2.Priority:
		return 1
	case p1.Num < p2.Num:
		return -1
	case p1.Num > p2.Num:
		return 1
	}
	return 0
}

// ComparePriorityVector 802.1D-2004 17.6, first mismatching field decides
// and the numerically smaller value wins.  The result describes a relative to b.
func ComparePriorityVector(a, b *PriorityVector) CompareResult {
	if c := CompareBridgeId(a.RootBridgeId, b.RootBridgeId); c != 0 {
		return toCompareResult(c)
	}
	if a.RootPathCost != b.RootPathCost {
		if a.RootPathCost < b.RootPathCost {
			return CompareBetter
		}
		return CompareWorse
	}
	if c := CompareBridgeId(a.DesignatedBridgeId, b.DesignatedBridgeId); c != 0 {
		return toCompareResult(c)
	}
	return toCompareResult(ComparePortId(a.DesignatedPortId, b.DesignatedPortId))
}

func toCompareResult(c int) CompareResult {
	if c < 0 {
		return CompareBetter
	} else if c > 0 {
		return CompareWorse
	}
	return CompareEqual
}

// CompareRstp reports which field of msg differs first from own and in which
// direction, from the point of view of msg.
func CompareRstp(own, msg *PriorityVector) RstpCompareResult {
	if c := CompareBridgeId(own.RootBridgeId, msg.RootBridgeId); c != 0 {
		if c < 0 {
			return RstpWorseRoot
		}
		return RstpBetterRoot
	}
	if own.RootPathCost != msg.RootPathCost {
		if own.RootPathCost < msg.RootPathCost {
			return RstpWorseRpc
		}
		return RstpBetterRpc
	}
	if c := CompareBridgeId(own.DesignatedBridgeId, msg.DesignatedBridgeId); c != 0 {
		if c < 0 {
			return RstpWorseSrc
		}
		return RstpBetterSrc
	}
	if c := ComparePortId(own.DesignatedPortId, msg.DesignatedPortId); c != 0 {
		if c < 0 {
			return RstpWorsePort
		}
		return RstpBetterPort
	}
	return RstpSimilar
}

// 17.6 Priority vector calculations
func IsMsgPriorityVectorSuperiorThanPortPriorityVector(msg *PriorityVector, port *PriorityVector) bool {
	return ComparePriorityVector(msg, port) == CompareBetter
}

func IsMsgPriorityVectorWorseThanPortPriorityVector(msg *PriorityVector, port *PriorityVector) bool {
	return ComparePriorityVector(msg, port) == CompareWorse
}

// Interface is the view of a host interface used to pick the bridge address
type Interface struct {
	Name         string
	Index        int32
	HardwareAddr net.HardwareAddr
	Loopback     bool
}

var ErrNoBridgeAddress = errors.New("no non-loopback interface with a hardware address")

// SelectBridgeAddress returns the MAC of the lowest indexed non-loopback interface
func SelectBridgeAddress(intfs []Interface) (net.HardwareAddr, error) {
	sorted := make([]Interface, len(intfs))
	copy(sorted, intfs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for _, intf := range sorted {
		if intf.Loopback || len(intf.HardwareAddr) != 6 {
			continue
		}
		if bytes.Equal(intf.HardwareAddr, make([]byte, 6)) {
			continue
		}
		return intf.HardwareAddr, nil
	}
	return nil, ErrNoBridgeAddress
}

// Collaborators are the host services a bridge instance is wired to
type Collaborators struct {
	Transport Transport
	Scheduler Scheduler
	Fdb       ForwardingTable
	Logger    *zap.Logger
}

// Bridge holds what both protocol variants share: the identity, the
// configured timers, the port database and the collaborators.
type Bridge struct {
	// 17.18.2
	BridgeIdentifier BridgeId
	// 17.18.4
	BridgeTimes Times

	ForceVersion int32
	TxHoldCount  uint64
	MigrateTime  uint16

	// configured priority, applied on the next parameter check
	priority uint16

	// statistics
	TopologyChanges uint64

	ports *PortDb
	tx    Transport
	sched Scheduler
	fdb   ForwardingTable
	log   *zap.Logger
	up    bool
}

func newBridge(c *StpBridgeConfig, portCfgs []StpPortConfig, col Collaborators) (*Bridge, error) {
	if err := StpBrgConfigParamCheck(c); err != nil {
		return nil, err
	}
	if col.Transport == nil || col.Scheduler == nil {
		return nil, errors.New("bridge requires a transport and a scheduler")
	}
	netAddr, err := net.ParseMAC(c.Address)
	if err != nil || len(netAddr) != 6 {
		return nil, errors.Errorf("Invalid Bridge Address %q", c.Address)
	}
	addr := [6]uint8{netAddr[0], netAddr[1], netAddr[2], netAddr[3], netAddr[4], netAddr[5]}
	bridgeId := CreateBridgeId(addr, c.Priority)

	migrate := c.MigrateTime
	if migrate == 0 {
		migrate = MigrateTimeDefault
	}

	b := &Bridge{
		BridgeIdentifier: bridgeId,
		BridgeTimes: Times{
			ForwardingDelay: c.ForwardDelay,
			HelloTime:       c.HelloTime,
			MaxAge:          c.MaxAge,
			MessageAge:      0,
		},
		ForceVersion: c.ForceVersion,
		TxHoldCount:  uint64(c.TxHoldCount),
		MigrateTime:  migrate,
		priority:     c.Priority,
		tx:           col.Transport,
		sched:        col.Scheduler,
		fdb:          col.Fdb,
		log:          col.Logger,
	}
	if b.fdb == nil {
		b.fdb = nopForwardingTable{}
	}
	if b.log == nil {
		b.log = gLogger
	}
	b.log = b.log.With(zap.String("bridge", bridgeId.String()))

	b.ports = NewPortDb(bridgeId, b.BridgeTimes)
	for i := range portCfgs {
		if err := b.ports.Add(&portCfgs[i]); err != nil {
			return nil, err
		}
	}
	b.log.Info("new bridge", zap.Int("ports", b.ports.Len()), zap.Int32("version", c.ForceVersion))
	return b, nil
}

func (b *Bridge) Id() BridgeId { return b.BridgeIdentifier }

func (b *Bridge) Ports() *PortDb { return b.ports }

func (b *Bridge) Up() bool { return b.up }

func (b *Bridge) TopologyChangeCount() uint64 { return b.TopologyChanges }

func (b *Bridge) Role(id InterfaceId) PortRole { return b.ports.Get(id).Role }

func (b *Bridge) State(id InterfaceId) PortState { return b.ports.Get(id).State }

// IsRootBridge a running bridge without a Root Port believes itself root
func (b *Bridge) IsRootBridge() bool {
	return b.up && b.rootPort() == nil
}

func (b *Bridge) RootPathCost() uint32 {
	if r := b.rootPort(); r != nil {
		return r.Pv.RootPathCost
	}
	return 0
}

func (b *Bridge) RootId() BridgeId {
	if r := b.rootPort(); r != nil {
		return r.Pv.RootBridgeId
	}
	return b.BridgeIdentifier
}

func (b *Bridge) RootAddress() net.HardwareAddr {
	return b.RootId().Address()
}

func (b *Bridge) RootPortId() (InterfaceId, bool) {
	if r := b.rootPort(); r != nil {
		return r.Id, true
	}
	return 0, false
}

// SetBridgePriority changes the configured priority, each variant decides
// when the new identity takes effect
func (b *Bridge) SetBridgePriority(prio uint16) error {
	if err := checkBridgePriority(prio); err != nil {
		return err
	}
	b.priority = prio
	return nil
}

func (b *Bridge) priorityChanged() bool {
	return b.priority != b.BridgeIdentifier.Priority()
}

func (b *Bridge) applyPriority() {
	addr := GetBridgeAddrFromBridgeId(b.BridgeIdentifier)
	b.BridgeIdentifier = CreateBridgeId(addr, b.priority)
	b.ports.SetBridge(b.BridgeIdentifier, b.BridgeTimes)
	b.log.Info("bridge priority changed", zap.Stringer("id", b.BridgeIdentifier))
}

func (b *Bridge) rootPort() *StpPort {
	var root *StpPort
	b.ports.ForEachPort(func(p *StpPort) {
		if root == nil && p.Role == PortRoleRootPort {
			root = p
		}
	})
	return root
}

// rootVector is the vector this bridge currently believes in
func (b *Bridge) rootVector() PriorityVector {
	if r := b.rootPort(); r != nil {
		return r.Pv
	}
	return PriorityVector{
		RootBridgeId:       b.BridgeIdentifier,
		RootPathCost:       0,
		DesignatedBridgeId: b.BridgeIdentifier,
	}
}

// currentTimes are inherited from the root port or are our own when root
func (b *Bridge) currentTimes() Times {
	if r := b.rootPort(); r != nil {
		return r.Times
	}
	return b.BridgeTimes
}

// advertisedVector is the vector this bridge would transmit on p, with the
// link cost of p added so it compares directly against received info
func (b *Bridge) advertisedVector(p *StpPort) PriorityVector {
	rv := b.rootVector()
	return PriorityVector{
		RootBridgeId:       rv.RootBridgeId,
		RootPathCost:       rv.RootPathCost + p.LinkCost,
		DesignatedBridgeId: b.BridgeIdentifier,
		DesignatedPortId:   p.portId(),
	}
}

func (b *Bridge) isOwnAddress(id BridgeId) bool {
	return CompareBridgeAddr(GetBridgeAddrFromBridgeId(id), GetBridgeAddrFromBridgeId(b.BridgeIdentifier)) == 0
}

func (b *Bridge) now() time.Duration { return b.sched.Now() }

func (b *Bridge) setRole(p *StpPort, role PortRole) {
	if !role.Valid() {
		b.fatalf("port %d invalid role %d", p.Id, int(role))
	}
	if p.Role != role {
		b.log.Debug("role change", zap.Int32("port", int32(p.Id)),
			zap.Stringer("from", p.Role), zap.Stringer("to", role))
	}
	p.Role = role
	if role == PortRoleDisabledPort {
		b.setState(p, PortStateDiscarding)
	}
}

func (b *Bridge) setState(p *StpPort, state PortState) {
	if !state.Valid() {
		b.fatalf("port %d invalid state %d", p.Id, int(state))
	}
	if p.State != state {
		b.log.Debug("state change", zap.Int32("port", int32(p.Id)),
			zap.Stringer("from", p.State), zap.Stringer("to", state))
	}
	p.State = state
}

func (b *Bridge) setRoleState(p *StpPort, role PortRole, state PortState) {
	b.setRole(p, role)
	b.setState(p, state)
}

func (b *Bridge) send(p *StpPort, dst net.HardwareAddr, pdu *Bpdu) {
	if b.TxHoldCount != 0 && p.TxCount >= b.TxHoldCount {
		b.log.Debug("tx hold count reached", zap.Int32("port", int32(p.Id)))
		return
	}
	p.TxCount++
	p.BpduTx++
	b.tx.SendBpdu(p.Id, dst, pdu)
}

func (b *Bridge) fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	b.log.Error(msg)
	panic(msg)
}

type nopForwardingTable struct{}

func (nopForwardingTable) Flush(InterfaceId)                  {}
func (nopForwardingTable) SetAgingTime(time.Duration)         {}
func (nopForwardingTable) ResetDefaultAging()                 {}
func (nopForwardingTable) CopyTable(InterfaceId, InterfaceId) {}
