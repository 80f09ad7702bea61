// port_test.go
package stp

import (
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func newTestPortDb(t *testing.T, cfgs ...StpPortConfig) *PortDb {
	db := NewPortDb(bid(32768, 1), Times{ForwardingDelay: 15, HelloTime: 2, MaxAge: 20, MessageAge: 3})
	for i := range cfgs {
		require.NoError(t, db.Add(&cfgs[i]))
	}
	return db
}

func TestPortDbOrdering(t *testing.T) {
	db := newTestPortDb(t, *NewStpPortConfig(7), *NewStpPortConfig(2), *NewStpPortConfig(5))

	assert.Equal(t, []InterfaceId{2, 5, 7}, db.Ids())
	assert.Equal(t, 3, db.Len())
	var seen []InterfaceId
	db.ForEachPort(func(p *StpPort) { seen = append(seen, p.Id) })
	assert.Equal(t, db.Ids(), seen)

	assert.True(t, db.Has(5))
	assert.False(t, db.Has(6))
	assert.Panics(t, func() { db.Get(6) })
}

func TestPortDbAddErrors(t *testing.T) {
	db := newTestPortDb(t, *NewStpPortConfig(1))

	dup := NewStpPortConfig(1)
	assert.Error(t, db.Add(dup))

	bad := NewStpPortConfig(2)
	bad.Priority = 7
	assert.Error(t, db.Add(bad))
	assert.Equal(t, 1, db.Len())
}

func TestPortDbDefaults(t *testing.T) {
	edge := NewStpPortConfig(2)
	edge.AdminEdgePort = true
	disabled := NewStpPortConfig(3)
	disabled.Enable = false
	auto := NewStpPortConfig(4)
	auto.PathCost = 0
	db := newTestPortDb(t, *NewStpPortConfig(1), *edge, *disabled, *auto)

	p := db.Get(1)
	assert.Equal(t, PortRoleUnassigned, p.Role)
	assert.Equal(t, PortStateDiscarding, p.State)
	assert.Equal(t, bid(32768, 1), p.Pv.RootBridgeId)
	assert.Equal(t, bid(32768, 1), p.Pv.DesignatedBridgeId)
	assert.Equal(t, PortId{Priority: 128, Num: 1}, p.Pv.DesignatedPortId)
	assert.Zero(t, p.Times.MessageAge)
	assert.Equal(t, uint16(20), p.Times.MaxAge)

	assert.Equal(t, PortRoleDesignatedPort, db.Get(2).Role)
	assert.Equal(t, PortStateForwarding, db.Get(2).State)
	assert.True(t, db.Get(2).OperEdge)

	assert.Equal(t, PortRoleDisabledPort, db.Get(3).Role)
	assert.Equal(t, PortStateDiscarding, db.Get(3).State)

	assert.Equal(t, uint32(PortPathCostDefault), db.Get(4).LinkCost)
}

func TestPortDbResetIdempotent(t *testing.T) {
	db := newTestPortDb(t, *NewStpPortConfig(1))
	p := db.Get(1)
	p.Role = PortRoleRootPort
	p.State = PortStateForwarding
	p.Pv.RootPathCost = 40000
	p.LostBpdu = 2
	p.FdWhile = 9
	p.BpduRx = 11

	db.ResetToDefaults(1)
	first := *p
	db.ResetToDefaults(1)
	if diff := cmp.Diff(first, *p); diff != "" {
		t.Errorf("second reset changed the port (-first +second):\n%s", diff)
	}
	assert.Equal(t, PortRoleUnassigned, p.Role)
	assert.Zero(t, p.LostBpdu)
	assert.Zero(t, p.FdWhile)
	// counters survive resets
	assert.Equal(t, uint64(11), p.BpduRx)
}

func TestPortDbResetInfoKeepsRole(t *testing.T) {
	db := newTestPortDb(t, *NewStpPortConfig(1))
	p := db.Get(1)
	p.Role = PortRoleAlternatePort
	p.Pv.RootBridgeId = bid(0, 9)

	db.ResetInfo(1)
	assert.Equal(t, PortRoleAlternatePort, p.Role)
	assert.Equal(t, bid(32768, 1), p.Pv.RootBridgeId)

	db.SetBridge(bid(4096, 1), Times{ForwardingDelay: 4, HelloTime: 1, MaxAge: 6})
	db.ResetInfo(1)
	assert.Equal(t, bid(4096, 1), p.Pv.RootBridgeId)
	assert.Equal(t, uint16(6), p.Times.MaxAge)
}
