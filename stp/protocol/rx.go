// rx will take care of parsing a received frame from a linux socket
// into the Bpdu handed to an Engine
package stp

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"net"
)

var ErrNotBpdu = errors.New("not a BPDU frame")

// DecodeBpduFrame validates an 802.3/LLC frame, 802.1D 9.3.4, and returns
// the BPDU together with the sender address
func DecodeBpduFrame(data []byte) (*Bpdu, net.HardwareAddr, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	ethernetLayer := packet.Layer(layers.LayerTypeEthernet)
	llcLayer := packet.Layer(layers.LayerTypeLLC)
	if ethernetLayer == nil || llcLayer == nil {
		return nil, nil, ErrNotBpdu
	}
	ethernet := ethernetLayer.(*layers.Ethernet)
	llc := llcLayer.(*layers.LLC)
	if llc.DSAP != BPDULlcDSAP || llc.SSAP != BPDULlcSSAP {
		return nil, nil, ErrNotBpdu
	}

	var layer BPDU
	if err := layer.DecodeFromBytes(llc.LayerPayload(), gopacket.NilDecodeFeedback); err != nil {
		return nil, nil, errors.Wrap(err, "decode bpdu")
	}
	pdu, err := layer.ToBpdu()
	if err != nil {
		return nil, nil, err
	}
	return pdu, ethernet.SrcMAC, nil
}

// ToBpdu converts the wire layer, condition 9.3.4 (a) (b) (c)
func (b *BPDU) ToBpdu() (*Bpdu, error) {
	if b.ProtocolId != BPDUProtocolIdentifier {
		return nil, errors.Errorf("unknown BPDU protocol id 0x%04x", b.ProtocolId)
	}
	switch b.BPDUType {
	case BPDUTypeTopoChange:
		pdu := NewTcnBpdu()
		pdu.Version = b.ProtocolVersionId
		return pdu, nil
	case BPDUTypeSTP, BPDUTypeRSTP:
	default:
		return nil, errors.Errorf("unknown BPDU type 0x%02x", b.BPDUType)
	}

	pdu := &Bpdu{
		Kind: BpduKindConfig,
		PriorityVector: PriorityVector{
			RootBridgeId:       BridgeId(b.RootId),
			RootPathCost:       b.RootPathCost,
			DesignatedBridgeId: BridgeId(b.BridgeId),
			DesignatedPortId:   decodePortId(b.PortId),
		},
		Times: Times{
			ForwardingDelay: b.FwdDelay >> 8,
			HelloTime:       b.HelloTime >> 8,
			MaxAge:          b.MaxAge >> 8,
			MessageAge:      b.MsgAge >> 8,
		},
		TopologyChange:    StpGetBpduTopoChange(b.Flags),
		TopologyChangeAck: StpGetBpduTopoChangeAck(b.Flags),
		Version:           b.ProtocolVersionId,
	}
	if b.BPDUType == BPDUTypeRSTP {
		pdu.Role = StpGetBpduRole(b.Flags)
		pdu.Learning = StpGetBpduLearning(b.Flags)
		pdu.Forwarding = StpGetBpduForwarding(b.Flags)
	}
	return pdu, nil
}
