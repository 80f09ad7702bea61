// bridge_test.go
package stp

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"net"
	"testing"
)

func bid(prio uint16, last uint8) BridgeId {
	return CreateBridgeId([6]uint8{0x00, 0x11, 0x22, 0x33, 0x44, last}, prio)
}

func TestBridgeIdHelpers(t *testing.T) {
	id := CreateBridgeId([6]uint8{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, 0x8001)

	assert.Equal(t, BridgeId{0x80, 0x01, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, id)
	assert.Equal(t, "80:01:00:11:22:33:44:55", id.String())
	assert.Equal(t, uint16(0x8001), id.Priority())
	assert.Equal(t, [6]uint8{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, GetBridgeAddrFromBridgeId(id))
	assert.Equal(t, "00:11:22:33:44:55", id.Address().String())
	assert.Equal(t, "128.3", PortId{Priority: 128, Num: 3}.String())
}

func TestCompareBridgeId(t *testing.T) {
	// priority outranks the address
	assert.Negative(t, CompareBridgeId(bid(4096, 0xff), bid(32768, 0x01)))
	assert.Positive(t, CompareBridgeId(bid(32768, 0x02), bid(32768, 0x01)))
	assert.Zero(t, CompareBridgeId(bid(32768, 0x01), bid(32768, 0x01)))

	assert.Negative(t, CompareBridgeAddr([6]uint8{0, 0, 0, 0, 0, 1}, [6]uint8{0, 0, 0, 0, 0, 2}))
}

func TestComparePortId(t *testing.T) {
	assert.Negative(t, ComparePortId(PortId{Priority: 16, Num: 9}, PortId{Priority: 128, Num: 1}))
	assert.Positive(t, ComparePortId(PortId{Priority: 128, Num: 2}, PortId{Priority: 128, Num: 1}))
	assert.Zero(t, ComparePortId(PortId{Priority: 128, Num: 2}, PortId{Priority: 128, Num: 2}))
}

func vector(root BridgeId, cost uint32, desig BridgeId, port uint32) PriorityVector {
	return PriorityVector{
		RootBridgeId:       root,
		RootPathCost:       cost,
		DesignatedBridgeId: desig,
		DesignatedPortId:   PortId{Priority: 128, Num: port},
	}
}

func TestComparePriorityVector(t *testing.T) {
	base := vector(bid(32768, 1), 100, bid(32768, 5), 2)
	testCases := []struct {
		name  string
		other PriorityVector
		want  CompareResult
		rstp  RstpCompareResult
	}{
		{name: "equal", other: base, want: CompareEqual, rstp: RstpSimilar},
		{name: "better root", other: vector(bid(4096, 9), 900, bid(32768, 9), 9), want: CompareBetter, rstp: RstpBetterRoot},
		{name: "worse root", other: vector(bid(32768, 2), 0, bid(32768, 1), 1), want: CompareWorse, rstp: RstpWorseRoot},
		{name: "better cost", other: vector(bid(32768, 1), 50, bid(32768, 9), 9), want: CompareBetter, rstp: RstpBetterRpc},
		{name: "worse cost", other: vector(bid(32768, 1), 200, bid(32768, 1), 1), want: CompareWorse, rstp: RstpWorseRpc},
		{name: "better designated bridge", other: vector(bid(32768, 1), 100, bid(32768, 4), 9), want: CompareBetter, rstp: RstpBetterSrc},
		{name: "worse designated bridge", other: vector(bid(32768, 1), 100, bid(32768, 6), 1), want: CompareWorse, rstp: RstpWorseSrc},
		{name: "better port", other: vector(bid(32768, 1), 100, bid(32768, 5), 1), want: CompareBetter, rstp: RstpBetterPort},
		{name: "worse port", other: vector(bid(32768, 1), 100, bid(32768, 5), 3), want: CompareWorse, rstp: RstpWorsePort},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			other := tc.other
			assert.Equal(t, tc.want, ComparePriorityVector(&other, &base))
			assert.Equal(t, tc.rstp, CompareRstp(&base, &other))
			// the received vector is better exactly when it compares better
			assert.Equal(t, tc.want == CompareBetter, CompareRstp(&base, &other) > RstpSimilar)
			assert.Equal(t, tc.want == CompareBetter, IsMsgPriorityVectorSuperiorThanPortPriorityVector(&other, &base))
			assert.Equal(t, tc.want == CompareWorse, IsMsgPriorityVectorWorseThanPortPriorityVector(&other, &base))
		})
	}
}

func randomVector(r *rand.Rand) PriorityVector {
	// narrow ranges so ties on leading fields are common
	return vector(bid(uint16(r.Intn(2))*4096, uint8(r.Intn(3))), uint32(r.Intn(3)),
		bid(32768, uint8(r.Intn(3))), uint32(r.Intn(3)))
}

func TestComparePriorityVectorOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		a, b, c := randomVector(r), randomVector(r), randomVector(r)

		ab := ComparePriorityVector(&a, &b)
		require.Equal(t, -ab, ComparePriorityVector(&b, &a), "antisymmetry %v %v", a, b)
		if ab == CompareEqual {
			require.Equal(t, a, b)
		}
		if ab == CompareBetter && ComparePriorityVector(&b, &c) == CompareBetter {
			require.Equal(t, CompareBetter, ComparePriorityVector(&a, &c), "transitivity %v %v %v", a, b, c)
		}
	}
}

func TestSelectBridgeAddress(t *testing.T) {
	intfs := []Interface{
		{Name: "eth1", Index: 3, HardwareAddr: net.HardwareAddr{0x02, 0, 0, 0, 0, 0x03}},
		{Name: "lo", Index: 1, HardwareAddr: net.HardwareAddr{0, 0, 0, 0, 0, 0}, Loopback: true},
		{Name: "tun0", Index: 2},
		{Name: "eth0", Index: 4, HardwareAddr: net.HardwareAddr{0x02, 0, 0, 0, 0, 0x04}},
	}
	addr, err := SelectBridgeAddress(intfs)
	require.NoError(t, err)
	assert.Equal(t, "02:00:00:00:00:03", addr.String())

	_, err = SelectBridgeAddress(intfs[1:3])
	assert.Equal(t, ErrNoBridgeAddress, err)
	_, err = SelectBridgeAddress(nil)
	assert.Equal(t, ErrNoBridgeAddress, err)
}
