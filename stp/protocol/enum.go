// enum
package stp

import (
	"fmt"
)

type PortRole int

const (
	PortRoleUnassigned PortRole = iota
	PortRoleRootPort
	PortRoleDesignatedPort
	PortRoleAlternatePort
	PortRoleBackupPort
	PortRoleDisabledPort
)

var PortRoleStrMap = map[PortRole]string{
	PortRoleUnassigned:     "Unassigned",
	PortRoleRootPort:       "Root",
	PortRoleDesignatedPort: "Designated",
	PortRoleAlternatePort:  "Alternate",
	PortRoleBackupPort:     "Backup",
	PortRoleDisabledPort:   "Disabled",
}

func (r PortRole) String() string {
	if s, ok := PortRoleStrMap[r]; ok {
		return s
	}
	return fmt.Sprintf("PortRole(%d)", int(r))
}

// Valid reports whether r is one of the defined roles
func (r PortRole) Valid() bool {
	_, ok := PortRoleStrMap[r]
	return ok
}

// PortState is the data plane consequence of a role, 802.1w merges
// 802.1D Disabled/Blocking/Listening into Discarding
type PortState int

const (
	PortStateDiscarding PortState = iota
	PortStateLearning
	PortStateForwarding
)

var PortStateStrMap = map[PortState]string{
	PortStateDiscarding: "Discarding",
	PortStateLearning:   "Learning",
	PortStateForwarding: "Forwarding",
}

func (s PortState) String() string {
	if str, ok := PortStateStrMap[s]; ok {
		return str
	}
	return fmt.Sprintf("PortState(%d)", int(s))
}

func (s PortState) Valid() bool {
	_, ok := PortStateStrMap[s]
	return ok
}

type BpduKind int

const (
	BpduKindConfig BpduKind = iota
	BpduKindTcn
)

func (k BpduKind) String() string {
	switch k {
	case BpduKindConfig:
		return "Config"
	case BpduKindTcn:
		return "Tcn"
	}
	return fmt.Sprintf("BpduKind(%d)", int(k))
}

// CompareResult is the outcome of a three way vector comparison
// of a against b
type CompareResult int

const (
	CompareWorse CompareResult = iota - 1
	CompareEqual
	CompareBetter
)

func (c CompareResult) String() string {
	switch c {
	case CompareWorse:
		return "Worse"
	case CompareEqual:
		return "Equal"
	case CompareBetter:
		return "Better"
	}
	return fmt.Sprintf("CompareResult(%d)", int(c))
}

// RstpCompareResult names the first field that differed between a locally
// held vector and a received one, from the point of view of the received
// vector.  Values greater than RstpSimilar mean the received vector is better.
type RstpCompareResult int

const (
	RstpWorseRoot RstpCompareResult = iota - 4
	RstpWorseRpc
	RstpWorseSrc
	RstpWorsePort
	RstpSimilar
	RstpBetterPort
	RstpBetterSrc
	RstpBetterRpc
	RstpBetterRoot
)

var RstpCompareResultStrMap = map[RstpCompareResult]string{
	RstpWorseRoot:  "WorseRoot",
	RstpWorseRpc:   "WorseRpc",
	RstpWorseSrc:   "WorseSrc",
	RstpWorsePort:  "WorsePort",
	RstpSimilar:    "Similar",
	RstpBetterPort: "BetterPort",
	RstpBetterSrc:  "BetterSrc",
	RstpBetterRpc:  "BetterRpc",
	RstpBetterRoot: "BetterRoot",
}

func (c RstpCompareResult) String() string {
	if s, ok := RstpCompareResultStrMap[c]; ok {
		return s
	}
	return fmt.Sprintf("RstpCompareResult(%d)", int(c))
}
