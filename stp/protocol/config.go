//
//Copyright [2016] [SnapRoute Inc]
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//	 Unless required by applicable law or agreed to in writing, software
//	 distributed under the License is distributed on an "AS IS" BASIS,
//	 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//	 See the License for the specific language governing permissions and
//	 limitations under the License.
//

// config.go
package stp

import (
	"github.com/pkg/errors"
)

type StpBridgeConfig struct {
	Address      string
	Priority     uint16
	MaxAge       uint16
	HelloTime    uint16
	ForwardDelay uint16
	ForceVersion int32
	TxHoldCount  int32
	// RSTP only, seconds an Unassigned port waits before becoming Designated
	MigrateTime uint16
}

type StpPortConfig struct {
	IfIndex       int32
	Priority      uint16
	Enable        bool
	PathCost      int32
	AdminEdgePort bool
}

func NewStpBridgeConfig(address string) *StpBridgeConfig {
	return &StpBridgeConfig{
		Address:      address,
		Priority:     BridgePriorityDefault,
		MaxAge:       BridgeMaxAgeDefault,
		HelloTime:    BridgeHelloTimeDefault,
		ForwardDelay: BridgeForwardDelayDefault,
		ForceVersion: RstpForceVersion,
		TxHoldCount:  TransmitHoldCountDefault,
		MigrateTime:  MigrateTimeDefault,
	}
}

func NewStpPortConfig(ifindex int32) *StpPortConfig {
	return &StpPortConfig{
		IfIndex:  ifindex,
		Priority: PortPriorityDefault,
		Enable:   true,
		PathCost: PortPathCostDefault,
	}
}

// Table 17-2 says the values can be 0-61440 in increments of 4096
func checkBridgePriority(prio uint16) error {
	if prio%4096 != 0 || prio > 61440 {
		return errors.Errorf("Invalid Bridge Priority %d valid values 0 - 61440 in steps of 4096", prio)
	}
	return nil
}

func StpBrgConfigParamCheck(c *StpBridgeConfig) error {

	if err := checkBridgePriority(c.Priority); err != nil {
		return err
	}

	// valid values according to Table 17-1
	if c.MaxAge < 6 ||
		c.MaxAge > 40 {
		return errors.Errorf("Invalid Bridge Max Age %d valid range 6.0 - 40.0", c.MaxAge)
	}

	if c.HelloTime < 1 ||
		c.HelloTime > 2 {
		return errors.Errorf("Invalid Bridge Hello Time %d valid range 1.0 - 2.0", c.HelloTime)
	}

	if c.ForwardDelay < 3 ||
		c.ForwardDelay > 30 {
		return errors.Errorf("Invalid Bridge Forward Delay %d valid range 3.0 - 30.0", c.ForwardDelay)
	}

	// 1 == STP
	// 2 == RSTP
	// 3 == MSTP currently not support
	if c.ForceVersion != StpForceVersion &&
		c.ForceVersion != RstpForceVersion {
		return errors.Errorf("Invalid Bridge Force Version %d valid 1 (STP) 2 (RSTP)", c.ForceVersion)
	}

	if c.TxHoldCount < 1 ||
		c.TxHoldCount > 10 {
		return errors.Errorf("Invalid Bridge Tx Hold Count %d valid range 1 - 10", c.TxHoldCount)
	}

	// 17.14
	if 2*(c.ForwardDelay-1) < c.MaxAge {
		return errors.Errorf("Invalid Bridge Max Age %d must be <= 2 x (Forward Delay %d - 1)", c.MaxAge, c.ForwardDelay)
	}
	if c.MaxAge < 2*(c.HelloTime+1) {
		return errors.Errorf("Invalid Bridge Max Age %d must be >= 2 x (Hello Time %d + 1)", c.MaxAge, c.HelloTime)
	}

	return nil
}

func StpPortConfigParamCheck(c *StpPortConfig) error {

	if c.IfIndex <= 0 || c.IfIndex > MaxInterfaceId {
		return errors.Errorf("Invalid Port %d valid range 1 - %d", c.IfIndex, MaxInterfaceId)
	}

	// Table 17-2
	if c.Priority%16 != 0 || c.Priority > 240 {
		return errors.Errorf("Invalid Port %d Priority %d valid values 0 - 240 in steps of 16", c.IfIndex, c.Priority)
	}

	if c.PathCost < 0 || c.PathCost > 200000000 {
		return errors.Errorf("Invalid Port %d Path Cost %d valid values 0 (AUTO) or 1 - 200,000,000", c.IfIndex, c.PathCost)
	}

	return nil
}
