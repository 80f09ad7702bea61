// fdb_test.go
package fdb

import (
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"net"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	mac1 = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x01}
	mac2 = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x02}
	mac3 = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x03}
)

// satisfies the engine collaborator
var _ stp.ForwardingTable = (*Table)(nil)

func TestLearnLookup(t *testing.T) {
	tbl := New(0, nil)
	tbl.Learn(mac1, 1)
	tbl.Learn(mac2, 2)

	port, ok := tbl.Lookup(mac1)
	require.True(t, ok)
	assert.Equal(t, stp.InterfaceId(1), port)

	_, ok = tbl.Lookup(mac3)
	assert.False(t, ok)

	// station moved
	tbl.Learn(mac1, 3)
	port, _ = tbl.Lookup(mac1)
	assert.Equal(t, stp.InterfaceId(3), port)
	assert.Equal(t, 2, tbl.Len())
}

func TestFlush(t *testing.T) {
	tbl := New(time.Minute, nil)
	tbl.Learn(mac1, 1)
	tbl.Learn(mac2, 1)
	tbl.Learn(mac3, 2)

	tbl.Flush(1)
	assert.Equal(t, 1, tbl.Len())
	_, ok := tbl.Lookup(mac1)
	assert.False(t, ok)
	port, ok := tbl.Lookup(mac3)
	assert.True(t, ok)
	assert.Equal(t, stp.InterfaceId(2), port)
	assert.Equal(t, uint64(1), tbl.FlushCount(1))
	assert.Equal(t, uint64(0), tbl.FlushCount(2))

	// flushing an empty port still counts
	tbl.Flush(5)
	assert.Equal(t, uint64(1), tbl.FlushCount(5))
}

func TestCopyTable(t *testing.T) {
	tbl := New(time.Minute, nil)
	tbl.Learn(mac1, 1)
	tbl.Learn(mac2, 2)

	tbl.CopyTable(1, 4)
	port, ok := tbl.Lookup(mac1)
	require.True(t, ok)
	assert.Equal(t, stp.InterfaceId(4), port)
	port, _ = tbl.Lookup(mac2)
	assert.Equal(t, stp.InterfaceId(2), port)
}

func TestCopyTableKeepsLifetime(t *testing.T) {
	tbl := New(time.Minute, nil)
	tbl.Learn(mac1, 1)
	before := tbl.cache.Get(mac1.String()).ExpiresAt()

	time.Sleep(10 * time.Millisecond)
	tbl.CopyTable(1, 2)
	item := tbl.cache.Get(mac1.String())
	require.NotNil(t, item)
	assert.Equal(t, stp.InterfaceId(2), item.Value().Port)
	assert.WithinDuration(t, before, item.ExpiresAt(), 5*time.Millisecond)
	assert.True(t, time.Until(item.ExpiresAt()) < time.Minute)
}

func TestAgingTime(t *testing.T) {
	tbl := New(time.Hour, nil)
	assert.Equal(t, time.Hour, tbl.AgingTime())

	tbl.Learn(mac1, 1)
	tbl.SetAgingTime(15 * time.Second)
	assert.Equal(t, 15*time.Second, tbl.AgingTime())
	for _, item := range tbl.cache.Items() {
		assert.True(t, time.Until(item.ExpiresAt()) <= 15*time.Second)
	}

	tbl.ResetDefaultAging()
	assert.Equal(t, time.Hour, tbl.AgingTime())
}

func TestEntriesExpire(t *testing.T) {
	tbl := New(20*time.Millisecond, nil)
	tbl.Start()
	defer tbl.Stop()

	tbl.Learn(mac1, 1)
	assert.Eventually(t, func() bool {
		_, ok := tbl.Lookup(mac1)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestEntriesSorted(t *testing.T) {
	tbl := New(time.Minute, nil)
	tbl.Learn(mac3, 3)
	tbl.Learn(mac1, 1)
	tbl.Learn(mac2, 2)

	entries := tbl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, mac1, entries[0].Address)
	assert.Equal(t, mac2, entries[1].Address)
	assert.Equal(t, mac3, entries[2].Address)
}
