// def.go
package stp

import (
	"net"
	"time"
)

const (
	MigrateTimeDefault        = 3
	BridgeHelloTimeDefault    = 2
	BridgeMaxAgeDefault       = 20
	BridgeForwardDelayDefault = 15
	TransmitHoldCountDefault  = 6
	BridgePriorityDefault     = 32768
	PortPriorityDefault       = 128
	// 802.1D-2004 Table 17-3, 1 Gb/s
	PortPathCostDefault = 20000

	// the port number is carried in the low 12 bits of the port identifier
	MaxInterfaceId = 0x0fff

	// consecutive hello periods without the expected BPDU before the
	// information on a Root/Alternate/Backup port is declared lost
	LostBpduLimit = 3
)

const (
	StpProtocolVersion  = 0
	RstpProtocolVersion = 2

	// ForceVersion values
	StpForceVersion  = 1
	RstpForceVersion = 2
)

// Timer names handed to the Scheduler
const (
	TimerTick    = "tick"
	TimerHello   = "hello"
	TimerUpgrade = "upgrade"
)

// BpduDMAC is the reserved bridge group address
var BpduDMAC = net.HardwareAddr{0x01, 0x80, 0xC2, 0x00, 0x00, 0x00}

// TickInterval drives the 802.1D state machine
const TickInterval = time.Second

func seconds(v uint16) time.Duration {
	return time.Duration(v) * time.Second
}

func ConvertBoolToUint8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// RSTP BPDU port role encoding 802.1D-2004 9.2.9
func bpduRoleBits(role PortRole) uint8 {
	switch role {
	case PortRoleAlternatePort, PortRoleBackupPort:
		return 1
	case PortRoleRootPort:
		return 2
	case PortRoleDesignatedPort:
		return 3
	}
	return 0
}

func bpduRoleFromBits(bits uint8) PortRole {
	switch bits & 0x3 {
	case 1:
		return PortRoleAlternatePort
	case 2:
		return PortRoleRootPort
	case 3:
		return PortRoleDesignatedPort
	}
	return PortRoleUnassigned
}

func StpSetBpduFlags(topochangeack uint8, agreement uint8, forwarding uint8, learning uint8, role PortRole, proposal uint8, topochange uint8, flags *uint8) {

	*flags |= topochangeack << 7
	*flags |= agreement << 6
	*flags |= forwarding << 5
	*flags |= learning << 4
	*flags |= bpduRoleBits(role) << 2
	*flags |= proposal << 1
	*flags |= topochange << 0

}

func StpGetBpduTopoChange(flags uint8) bool {
	return flags&0x01 != 0
}

func StpGetBpduTopoChangeAck(flags uint8) bool {
	return flags&0x80 != 0
}

func StpGetBpduLearning(flags uint8) bool {
	return flags&0x10 != 0
}

func StpGetBpduForwarding(flags uint8) bool {
	return flags&0x20 != 0
}

func StpGetBpduRole(flags uint8) PortRole {
	return bpduRoleFromBits(flags >> 2)
}
