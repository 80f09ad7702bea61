// layer.go
package stp

import (
	"encoding/binary"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// 802.1D-2004 9.3
const (
	BPDUTypeSTP        = 0x00
	BPDUTypeRSTP       = 0x02
	BPDUTypeTopoChange = 0x80

	BPDUProtocolIdentifier = 0x0000

	BPDUTopologyLength  = 4
	STPProtocolLength   = 35
	RSTPProtocolLength  = 36
	BPDULlcDSAP         = 0x42
	BPDULlcSSAP         = 0x42
	BPDULlcControlUI    = 0x03
	bpduLayerTypeNumber = 2001
)

var LayerTypeBPDU = gopacket.RegisterLayerType(bpduLayerTypeNumber, gopacket.LayerTypeMetadata{
	Name:    "BPDU",
	Decoder: gopacket.DecodeFunc(decodeBPDU),
})

// BPDU is the on wire layer carried behind the 802.2 LLC header, timer
// fields are in units of 1/256 second
type BPDU struct {
	layers.BaseLayer
	ProtocolId        uint16
	ProtocolVersionId uint8
	BPDUType          uint8
	Flags             uint8
	RootId            [8]byte
	RootPathCost      uint32
	BridgeId          [8]byte
	PortId            uint16
	MsgAge            uint16
	MaxAge            uint16
	HelloTime         uint16
	FwdDelay          uint16
	Version1Length    uint8
}

func (b *BPDU) LayerType() gopacket.LayerType { return LayerTypeBPDU }

func (b *BPDU) CanDecode() gopacket.LayerClass { return LayerTypeBPDU }

func (b *BPDU) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

func (b *BPDU) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < BPDUTopologyLength {
		df.SetTruncated()
		return errors.Errorf("BPDU length %d too short", len(data))
	}
	b.ProtocolId = binary.BigEndian.Uint16(data[0:2])
	b.ProtocolVersionId = data[2]
	b.BPDUType = data[3]

	length := 0
	switch b.BPDUType {
	case BPDUTypeTopoChange:
		b.BaseLayer = layers.BaseLayer{Contents: data[:BPDUTopologyLength], Payload: data[BPDUTopologyLength:]}
		return nil
	case BPDUTypeSTP:
		length = STPProtocolLength
	case BPDUTypeRSTP:
		length = RSTPProtocolLength
	default:
		return errors.Errorf("unknown BPDU type 0x%02x", b.BPDUType)
	}
	if len(data) < length {
		df.SetTruncated()
		return errors.Errorf("BPDU type 0x%02x length %d want %d", b.BPDUType, len(data), length)
	}

	b.Flags = data[4]
	copy(b.RootId[:], data[5:13])
	b.RootPathCost = binary.BigEndian.Uint32(data[13:17])
	copy(b.BridgeId[:], data[17:25])
	b.PortId = binary.BigEndian.Uint16(data[25:27])
	b.MsgAge = binary.BigEndian.Uint16(data[27:29])
	b.MaxAge = binary.BigEndian.Uint16(data[29:31])
	b.HelloTime = binary.BigEndian.Uint16(data[31:33])
	b.FwdDelay = binary.BigEndian.Uint16(data[33:35])
	if b.BPDUType == BPDUTypeRSTP {
		b.Version1Length = data[35]
	}
	b.BaseLayer = layers.BaseLayer{Contents: data[:length], Payload: data[length:]}
	return nil
}

func (b *BPDU) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	length := 0
	switch b.BPDUType {
	case BPDUTypeTopoChange:
		length = BPDUTopologyLength
	case BPDUTypeSTP:
		length = STPProtocolLength
	case BPDUTypeRSTP:
		length = RSTPProtocolLength
	default:
		return errors.Errorf("unknown BPDU type 0x%02x", b.BPDUType)
	}
	bytes, err := buf.PrependBytes(length)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(bytes[0:2], b.ProtocolId)
	bytes[2] = b.ProtocolVersionId
	bytes[3] = b.BPDUType
	if length == BPDUTopologyLength {
		return nil
	}
	bytes[4] = b.Flags
	copy(bytes[5:13], b.RootId[:])
	binary.BigEndian.PutUint32(bytes[13:17], b.RootPathCost)
	copy(bytes[17:25], b.BridgeId[:])
	binary.BigEndian.PutUint16(bytes[25:27], b.PortId)
	binary.BigEndian.PutUint16(bytes[27:29], b.MsgAge)
	binary.BigEndian.PutUint16(bytes[29:31], b.MaxAge)
	binary.BigEndian.PutUint16(bytes[31:33], b.HelloTime)
	binary.BigEndian.PutUint16(bytes[33:35], b.FwdDelay)
	if length == RSTPProtocolLength {
		bytes[35] = b.Version1Length
	}
	return nil
}

func decodeBPDU(data []byte, p gopacket.PacketBuilder) error {
	b := &BPDU{}
	if err := b.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(b)
	return nil
}

// port identifier 9.2.7, 4 bits of priority and 12 bits of port number
func encodePortId(id PortId) uint16 {
	return uint16(id.Priority&0xF0)<<8 | uint16(id.Num&0x0FFF)
}

func decodePortId(v uint16) PortId {
	return PortId{
		Priority: (v >> 8) & 0xF0,
		Num:      uint32(v & 0x0FFF),
	}
}
