// check.go
package sim

import (
	"bytes"
	"fmt"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	stp "github.com/oshothebig/l2/stp/protocol"
	"io"
	"strconv"
)

// CheckSingleRoot verifies every running bridge agrees on the root
func (s *Simulator) CheckSingleRoot() error {
	var root stp.BridgeId
	var first string
	for _, b := range s.Bridges() {
		if !b.up {
			continue
		}
		r := b.Engine.RootId()
		if first == "" {
			root, first = r, b.Name
			continue
		}
		if stp.CompareBridgeId(root, r) != 0 {
			return errors.Errorf("bridge %s sees root %s, bridge %s sees %s", first, root, b.Name, r)
		}
	}
	return nil
}

type unionFind map[string]string

// find registers x as its own root on first sight, so every parent stored
// in the map is itself a key
func (u unionFind) find(x string) string {
	if _, ok := u[x]; !ok {
		u[x] = x
		return x
	}
	for u[x] != x {
		u[x] = u[u[x]]
		x = u[x]
	}
	return x
}

// union reports false when a and b were already joined
func (u unionFind) union(a, b string) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	u[ra] = rb
	return true
}

func bridgeNode(name string) string { return "b/" + name }
func segmentNode(name string) string { return "s/" + name }

// forwardingGraph joins bridges and segments over forwarding ports and fails
// on the first cycle
func (s *Simulator) forwardingGraph() (unionFind, error) {
	u := make(unionFind)
	for _, b := range s.Bridges() {
		if !b.up {
			continue
		}
		var err error
		b.Engine.Ports().ForEachPort(func(p *stp.StpPort) {
			if err != nil || p.State != stp.PortStateForwarding {
				return
			}
			seg := b.attach[p.Id]
			if seg == nil || !seg.up {
				return
			}
			if !u.union(bridgeNode(b.Name), segmentNode(seg.Name)) {
				err = errors.Errorf("forwarding loop through %s:%d on %s", b.Name, p.Id, seg.Name)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (s *Simulator) CheckLoopFree() error {
	_, err := s.forwardingGraph()
	return err
}

// CheckSpanning verifies the forwarding ports join every running bridge
// into one loop free tree
func (s *Simulator) CheckSpanning() error {
	u, err := s.forwardingGraph()
	if err != nil {
		return err
	}
	var first string
	for _, b := range s.Bridges() {
		if !b.up {
			continue
		}
		if first == "" {
			first = b.Name
			continue
		}
		if u.find(bridgeNode(b.Name)) != u.find(bridgeNode(first)) {
			return errors.Errorf("bridge %s is not reachable from %s over forwarding ports", b.Name, first)
		}
	}
	return nil
}

// PortStatus is one row of the state table
type PortStatus struct {
	Bridge  string
	Port    stp.InterfaceId
	Segment string
	Role    stp.PortRole
	State   stp.PortState
}

func (s *Simulator) Status() []PortStatus {
	var rows []PortStatus
	for _, b := range s.Bridges() {
		b.Engine.Ports().ForEachPort(func(p *stp.StpPort) {
			row := PortStatus{Bridge: b.Name, Port: p.Id, Role: p.Role, State: p.State}
			if seg := b.attach[p.Id]; seg != nil {
				row.Segment = seg.Name
			}
			rows = append(rows, row)
		})
	}
	return rows
}

// PortStatus looks up a single port, ok is false for an unknown port
func (s *Simulator) PortStatus(bridge string, port stp.InterfaceId) (PortStatus, bool) {
	for _, row := range s.Status() {
		if row.Bridge == bridge && row.Port == port {
			return row, true
		}
	}
	return PortStatus{}, false
}

// NewTable is a borderless left aligned table, the layout every state
// listing uses
func NewTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

// WriteTable renders the bridges and their ports
func (s *Simulator) WriteTable(w io.Writer) {
	table := NewTable(w, "BRIDGE", "ID", "ROOT", "COST", "PORT", "LINK", "ROLE", "STATE")

	var rows [][]string
	for _, b := range s.Bridges() {
		name, id, root, cost := b.Name, b.Engine.Id().String(), "", ""
		if b.up {
			root = b.Engine.RootId().String()
			cost = strconv.FormatUint(uint64(b.Engine.RootPathCost()), 10)
			if b.Engine.IsRootBridge() {
				root = "self"
			}
		} else {
			root = "down"
		}
		b.Engine.Ports().ForEachPort(func(p *stp.StpPort) {
			link := "-"
			if seg := b.attach[p.Id]; seg != nil {
				link = seg.Name
				if !seg.up {
					link += " (down)"
				}
			}
			rows = append(rows, []string{name, id, root, cost, fmt.Sprintf("%d", p.Id), link, p.Role.String(), p.State.String()})
			// bridge columns only on the first row
			name, id, root, cost = "", "", "", ""
		})
	}
	table.AppendBulk(rows)
	table.Render()
}

// Table returns WriteTable as a string
func (s *Simulator) Table() string {
	var buf bytes.Buffer
	s.WriteTable(&buf)
	return buf.String()
}
