// fdb.go
package fdb

import (
	"bytes"
	"github.com/jellydator/ttlcache/v3"
	stp "github.com/oshothebig/l2/stp/protocol"
	"go.uber.org/zap"
	"net"
	"sort"
	"sync"
	"time"
)

// DefaultAgingTime 802.1D-2004 Table 7-5
const DefaultAgingTime = 300 * time.Second

type Entry struct {
	Address net.HardwareAddr
	Port    stp.InterfaceId
}

// Table is a MAC learning table whose entries age out on their own, it
// satisfies stp.ForwardingTable.
//
// Entry lifetimes run on the wall clock through ttlcache, also when the
// engine feeding the table runs on the simulator's virtual clock. Aging
// times and the remaining lifetimes CopyTable carries over are therefore
// real durations, a simulated minute does not age anything.
type Table struct {
	mu           sync.Mutex
	cache        *ttlcache.Cache[string, Entry]
	defaultAging time.Duration
	aging        time.Duration
	flushes      map[stp.InterfaceId]uint64
	log          *zap.Logger
}

func New(defaultAging time.Duration, log *zap.Logger) *Table {
	if defaultAging <= 0 {
		defaultAging = DefaultAgingTime
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		cache: ttlcache.New[string, Entry](
			ttlcache.WithTTL[string, Entry](defaultAging),
			ttlcache.WithDisableTouchOnHit[string, Entry](),
		),
		defaultAging: defaultAging,
		aging:        defaultAging,
		flushes:      make(map[stp.InterfaceId]uint64),
		log:          log,
	}
}

// Start runs the expiry loop until Stop
func (t *Table) Start() {
	go t.cache.Start()
}

func (t *Table) Stop() {
	t.cache.Stop()
}

func (t *Table) Learn(addr net.HardwareAddr, port stp.InterfaceId) {
	t.mu.Lock()
	aging := t.aging
	t.mu.Unlock()
	a := make(net.HardwareAddr, len(addr))
	copy(a, addr)
	t.cache.Set(a.String(), Entry{Address: a, Port: port}, aging)
}

func (t *Table) Lookup(addr net.HardwareAddr) (stp.InterfaceId, bool) {
	item := t.cache.Get(addr.String())
	if item == nil {
		return 0, false
	}
	return item.Value().Port, true
}

func (t *Table) Len() int {
	return t.cache.Len()
}

// Entries in address order
func (t *Table) Entries() []Entry {
	items := t.cache.Items()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsExpired() {
			continue
		}
		entries = append(entries, item.Value())
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Address, entries[j].Address) < 0
	})
	return entries
}

func (t *Table) Flush(port stp.InterfaceId) {
	t.mu.Lock()
	t.flushes[port]++
	t.mu.Unlock()
	n := 0
	for key, item := range t.cache.Items() {
		if item.Value().Port == port {
			t.cache.Delete(key)
			n++
		}
	}
	t.log.Debug("fdb flush", zap.Int32("port", int32(port)), zap.Int("entries", n))
}

func (t *Table) FlushCount(port stp.InterfaceId) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushes[port]
}

// SetAgingTime shortens the life of new and existing entries
func (t *Table) SetAgingTime(d time.Duration) {
	t.mu.Lock()
	t.aging = d
	t.mu.Unlock()
	now := time.Now()
	for key, item := range t.cache.Items() {
		if item.ExpiresAt().Sub(now) > d {
			t.cache.Set(key, item.Value(), d)
		}
	}
	t.log.Debug("fdb aging time", zap.Duration("aging", d))
}

func (t *Table) ResetDefaultAging() {
	t.mu.Lock()
	t.aging = t.defaultAging
	t.mu.Unlock()
	t.log.Debug("fdb aging time reset", zap.Duration("aging", t.defaultAging))
}

func (t *Table) AgingTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aging
}

// CopyTable moves every station known on from to to, each entry keeps the
// wall clock lifetime it had left
func (t *Table) CopyTable(from, to stp.InterfaceId) {
	for key, item := range t.cache.Items() {
		e := item.Value()
		if e.Port != from {
			continue
		}
		remaining := time.Until(item.ExpiresAt())
		if remaining <= 0 {
			continue
		}
		e.Port = to
		t.cache.Set(key, e, remaining)
	}
}
