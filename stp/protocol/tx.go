// tx.go
package stp

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"net"
)

func BuildEthernetLlcHeaders(src, dst net.HardwareAddr) (eth layers.Ethernet, llc layers.LLC) {
	eth = layers.Ethernet{
		SrcMAC: src,
		DstMAC: dst,
		// length is filled in on serialization
		EthernetType: layers.EthernetTypeLLC,
	}

	llc = layers.LLC{
		DSAP:    BPDULlcDSAP,
		IG:      false,
		SSAP:    BPDULlcSSAP,
		CR:      false,
		Control: BPDULlcControlUI,
	}
	return eth, llc
}

// NewBPDULayer picks the wire format from the BPDU kind and version
func NewBPDULayer(pdu *Bpdu) *BPDU {
	if pdu.Kind == BpduKindTcn {
		return &BPDU{
			ProtocolId:        BPDUProtocolIdentifier,
			ProtocolVersionId: StpProtocolVersion,
			BPDUType:          BPDUTypeTopoChange,
		}
	}

	l := &BPDU{
		ProtocolId:        BPDUProtocolIdentifier,
		ProtocolVersionId: pdu.Version,
		BPDUType:          BPDUTypeSTP,
		RootId:            pdu.RootBridgeId,
		RootPathCost:      pdu.RootPathCost,
		BridgeId:          pdu.DesignatedBridgeId,
		PortId:            encodePortId(pdu.DesignatedPortId),
		MsgAge:            pdu.MessageAge << 8,
		MaxAge:            pdu.MaxAge << 8,
		HelloTime:         pdu.HelloTime << 8,
		FwdDelay:          pdu.ForwardingDelay << 8,
	}
	if pdu.Version >= RstpProtocolVersion {
		l.BPDUType = BPDUTypeRSTP
		StpSetBpduFlags(ConvertBoolToUint8(pdu.TopologyChangeAck),
			0,
			ConvertBoolToUint8(pdu.Forwarding),
			ConvertBoolToUint8(pdu.Learning),
			pdu.Role,
			0,
			ConvertBoolToUint8(pdu.TopologyChange),
			&l.Flags)
	} else {
		StpSetBpduFlags(ConvertBoolToUint8(pdu.TopologyChangeAck),
			0, 0, 0,
			PortRoleUnassigned,
			0,
			ConvertBoolToUint8(pdu.TopologyChange),
			&l.Flags)
	}
	return l
}

// BuildBpduFrame serializes pdu into a padded 802.3 frame
func BuildBpduFrame(src, dst net.HardwareAddr, pdu *Bpdu) ([]byte, error) {
	eth, llc := BuildEthernetLlcHeaders(src, dst)
	bpdu := NewBPDULayer(pdu)

	// Set up buffer and options for serialization.
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &llc, bpdu); err != nil {
		return nil, errors.Wrap(err, "serialize bpdu")
	}
	return buf.Bytes(), nil
}
