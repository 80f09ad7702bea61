// bpdu.go
package stp

import (
	"fmt"
)

// Bpdu is the decoded form of a Config, RST or TCN BPDU.  A Tcn carries
// nothing but its kind.
type Bpdu struct {
	Kind BpduKind
	PriorityVector
	Times

	TopologyChange    bool
	TopologyChangeAck bool

	// 0 for 802.1D, 2 for RST BPDUs
	Version    uint8
	Role       PortRole
	Learning   bool
	Forwarding bool
}

func NewTcnBpdu() *Bpdu {
	return &Bpdu{Kind: BpduKindTcn}
}

func (b *Bpdu) String() string {
	if b.Kind == BpduKindTcn {
		return "TCN"
	}
	return fmt.Sprintf("%s v%d root %s cost %d brg %s port %s age %d/%d tc %t tca %t",
		b.Kind, b.Version, b.RootBridgeId, b.RootPathCost, b.DesignatedBridgeId,
		b.DesignatedPortId, b.MessageAge, b.MaxAge, b.TopologyChange, b.TopologyChangeAck)
}
