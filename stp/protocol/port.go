// port.go
package stp

import (
	"fmt"
	"github.com/pkg/errors"
	"sort"
	"time"
)

type StpPort struct {
	Id       InterfaceId
	Priority uint16
	LinkCost uint32

	AdminEdge bool
	OperEdge  bool
	// administratively enabled
	Enabled bool
	Carrier bool

	Role  PortRole
	State PortState

	// 17.19.21 best information seen on this port, or our own when Designated
	Pv    PriorityVector
	Times Times

	// STP seconds spent in the current forwarding delay stage
	FdWhile uint16
	// absolute deadlines on the scheduler clock
	TcWhile     time.Duration
	NextUpgrade time.Duration
	// RSTP hello periods without the expected BPDU
	LostBpdu int

	// reset every tick/hello
	TxCount uint64

	// statistics
	BpduRx uint64
	BpduTx uint64
}

func (p *StpPort) portId() PortId {
	return PortId{Priority: p.Priority, Num: uint32(p.Id)}
}

func (p *StpPort) operational() bool {
	return p.Enabled && p.Carrier
}

func (p *StpPort) String() string {
	return fmt.Sprintf("port %d %s/%s root %s cost %d desig %s/%s",
		p.Id, p.Role, p.State, p.Pv.RootBridgeId, p.Pv.RootPathCost,
		p.Pv.DesignatedBridgeId, p.Pv.DesignatedPortId)
}

// PortDb owns every port of a bridge, iteration is always by ascending id
type PortDb struct {
	self  BridgeId
	times Times
	ids   []InterfaceId
	ports map[InterfaceId]*StpPort
}

func NewPortDb(self BridgeId, t Times) *PortDb {
	return &PortDb{
		self:  self,
		times: t,
		ports: make(map[InterfaceId]*StpPort),
	}
}

func (db *PortDb) Add(c *StpPortConfig) error {
	if err := StpPortConfigParamCheck(c); err != nil {
		return err
	}
	id := InterfaceId(c.IfIndex)
	if _, ok := db.ports[id]; ok {
		return errors.Errorf("Invalid config, port %d already exists", c.IfIndex)
	}
	cost := uint32(c.PathCost)
	if cost == 0 {
		cost = PortPathCostDefault
	}
	p := &StpPort{
		Id:        id,
		Priority:  c.Priority,
		LinkCost:  cost,
		AdminEdge: c.AdminEdgePort,
		Enabled:   c.Enable,
		Carrier:   true,
	}
	db.ports[id] = p
	i := sort.Search(len(db.ids), func(i int) bool { return db.ids[i] >= id })
	db.ids = append(db.ids, 0)
	copy(db.ids[i+1:], db.ids[i:])
	db.ids[i] = id
	db.ResetToDefaults(id)
	return nil
}

// Get panics on an unknown id, callers only hold ids handed out by the db
func (db *PortDb) Get(id InterfaceId) *StpPort {
	p, ok := db.ports[id]
	if !ok {
		StpLogger("ERROR", fmt.Sprintf("unknown port %d", id))
		panic(fmt.Sprintf("stp: unknown port %d", id))
	}
	return p
}

func (db *PortDb) Has(id InterfaceId) bool {
	_, ok := db.ports[id]
	return ok
}

func (db *PortDb) ForEachPort(f func(p *StpPort)) {
	for _, id := range db.ids {
		f(db.ports[id])
	}
}

func (db *PortDb) Ids() []InterfaceId {
	ids := make([]InterfaceId, len(db.ids))
	copy(ids, db.ids)
	return ids
}

func (db *PortDb) Len() int { return len(db.ids) }

// SetBridge changes the identity and timers ports are reset to
func (db *PortDb) SetBridge(self BridgeId, t Times) {
	db.self = self
	db.times = t
}

// ResetInfo forgets what was learnt on the port without touching role or state
func (db *PortDb) ResetInfo(id InterfaceId) {
	p := db.Get(id)
	p.Pv = PriorityVector{
		RootBridgeId:       db.self,
		RootPathCost:       0,
		DesignatedBridgeId: db.self,
		DesignatedPortId:   p.portId(),
	}
	p.Times = db.times
	p.Times.MessageAge = 0
	p.LostBpdu = 0
}

// ResetToDefaults puts the port back to its just created state
func (db *PortDb) ResetToDefaults(id InterfaceId) {
	db.ResetInfo(id)
	p := db.Get(id)
	p.FdWhile = 0
	p.TcWhile = 0
	p.NextUpgrade = 0
	p.OperEdge = p.AdminEdge
	switch {
	case !p.operational():
		p.Role = PortRoleDisabledPort
		p.State = PortStateDiscarding
	case p.OperEdge:
		p.Role = PortRoleDesignatedPort
		p.State = PortStateForwarding
	default:
		p.Role = PortRoleUnassigned
		p.State = PortStateDiscarding
	}
}
