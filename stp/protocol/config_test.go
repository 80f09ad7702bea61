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
// _______  __       __________   ___      _______.____    __    ____  __  .___________.  ______  __    __
// |   ____||  |     |   ____\  \ /  /     /       |\   \  /  \  /   / |  | |           | /      ||  |  |  |
// |  |__   |  |     |  |__   \  V  /     |   (----` \   \/    \/   /  |  | `---|  |----`|  ,----'|  |__|  |
// |   __|  |  |     |   __|   >   <       \   \      \            /   |  |     |  |     |  |     |   __   |
// |  |     |  `----.|  |____ /  .  \  .----)   |      \    /\    /    |  |     |  |     |  `----.|  |  |  |
// |__|     |_______||_______/__/ \__\ |_______/        \__/  \__/     |__|     |__|      \______||__|  |__|
//

package stp

import (
	"testing"
)

func StpBridgeConfigSetup() *StpBridgeConfig {
	brg := &StpBridgeConfig{
		Address:      "00:11:22:33:44:55",
		Priority:     32768,
		MaxAge:       10,
		HelloTime:    1,
		ForwardDelay: 6,
		ForceVersion: 2, // RSTP
		TxHoldCount:  2,
	}
	return brg
}

func StpPortConfigSetup() *StpPortConfig {
	p := &StpPortConfig{
		IfIndex:  1,
		Priority: 128,
		Enable:   true,
		PathCost: 200000,
	}
	return p
}

func TestStpBridgeParamCheckValid(t *testing.T) {
	brgcfg := StpBridgeConfigSetup()
	err := StpBrgConfigParamCheck(brgcfg)
	if err != nil {
		t.Error("ERROR valid config failed", err)
	}

	// defaults must always pass
	err = StpBrgConfigParamCheck(NewStpBridgeConfig("00:11:22:33:44:55"))
	if err != nil {
		t.Error("ERROR default config failed", err)
	}
	err = StpPortConfigParamCheck(NewStpPortConfig(1))
	if err != nil {
		t.Error("ERROR default port config failed", err)
	}
}

func TestStpBridgeParamCheckPriority(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()

	// set bad value
	brgcfg.Priority = 11111
	err := StpBrgConfigParamCheck(brgcfg)
	if err == nil {
		t.Error("ERROR an invalid priority was set should have errored", brgcfg.Priority)
	}

	brgcfg.Priority = 65535
	err = StpBrgConfigParamCheck(brgcfg)
	if err == nil {
		t.Error("ERROR an invalid priority was set should have errored", brgcfg.Priority)
	}

	// now lets send a good value according to table 802.1D 17-2
	// 0 - 61440 in increments of 4096
	for i := uint16(0); i <= 61440/4096; i++ {
		brgcfg.Priority = 4096 * i
		err = StpBrgConfigParamCheck(brgcfg)
		if err != nil {
			t.Error("ERROR valid priority was set should not have errored", brgcfg.Priority, err)
		}
	}
}

func TestStpBridgeParamCheckMaxAge(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()
	// keep 17.14 out of the way
	brgcfg.ForwardDelay = 30

	// set bad value
	for _, v := range []uint16{0, 5, 41} {
		brgcfg.MaxAge = v
		err := StpBrgConfigParamCheck(brgcfg)
		if err == nil {
			t.Error("ERROR an invalid max age was set should have errored", brgcfg.MaxAge)
		}
	}

	// Table 17-1 6.0 - 40.0
	for i := uint16(6); i <= 40; i++ {
		brgcfg.MaxAge = i
		err := StpBrgConfigParamCheck(brgcfg)
		if err != nil {
			t.Error("ERROR valid max age was set should not have errored", brgcfg.MaxAge, err)
		}
	}
}

func TestStpBridgeParamCheckHelloTime(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()

	// set bad value
	for _, v := range []uint16{0, 3} {
		brgcfg.HelloTime = v
		err := StpBrgConfigParamCheck(brgcfg)
		if err == nil {
			t.Error("ERROR an invalid hello time was set should have errored", brgcfg.HelloTime)
		}
	}

	// Table 17-1 1.0 - 2.0
	for i := uint16(1); i <= 2; i++ {
		brgcfg.HelloTime = i
		err := StpBrgConfigParamCheck(brgcfg)
		if err != nil {
			t.Error("ERROR valid hello time was set should not have errored", brgcfg.HelloTime, err)
		}
	}
}

func TestStpBridgeParamCheckFowardingDelay(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()

	// set bad value
	for _, v := range []uint16{2, 31} {
		brgcfg.ForwardDelay = v
		err := StpBrgConfigParamCheck(brgcfg)
		if err == nil {
			t.Error("ERROR an invalid forward delay was set should have errored", brgcfg.ForwardDelay)
		}
	}

	// Table 17-1 4.0 - 30.0, lower values break 17.14 with a max age of 10
	for i := uint16(6); i <= 30; i++ {
		brgcfg.ForwardDelay = i
		err := StpBrgConfigParamCheck(brgcfg)
		if err != nil {
			t.Error("ERROR valid forward delay was set should not have errored", brgcfg.ForwardDelay, err)
		}
	}
}

func TestStpBridgeParamCheckTimerRelation(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()

	// 17.14 2 x (Forward Delay - 1) >= Max Age
	brgcfg.ForwardDelay = 5
	err := StpBrgConfigParamCheck(brgcfg)
	if err == nil {
		t.Error("ERROR max age larger than 2 x (forward delay - 1) should have errored", brgcfg.MaxAge, brgcfg.ForwardDelay)
	}

	// 17.14 Max Age >= 2 x (Hello Time + 1), the lowest max age satisfies it
	brgcfg.ForwardDelay = 30
	brgcfg.MaxAge = 6
	brgcfg.HelloTime = 2
	err = StpBrgConfigParamCheck(brgcfg)
	if err != nil {
		t.Error("ERROR max age equal to 2 x (hello time + 1) should not have errored", err)
	}
}

func TestStpBridgeParamCheckTxHoldCount(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()

	// set bad value
	for _, v := range []int32{0, 11, -1} {
		brgcfg.TxHoldCount = v
		err := StpBrgConfigParamCheck(brgcfg)
		if err == nil {
			t.Error("ERROR an invalid tx hold count was set should have errored", brgcfg.TxHoldCount)
		}
	}

	// 1 - 10
	for i := int32(1); i <= 10; i++ {
		brgcfg.TxHoldCount = i
		err := StpBrgConfigParamCheck(brgcfg)
		if err != nil {
			t.Error("ERROR valid tx hold count was set should not have errored", brgcfg.TxHoldCount, err)
		}
	}
}

func TestStpBridgeParamCheckForceVersion(t *testing.T) {

	// setup
	brgcfg := StpBridgeConfigSetup()

	// set bad value, MSTP not supported
	for _, v := range []int32{0, 3} {
		brgcfg.ForceVersion = v
		err := StpBrgConfigParamCheck(brgcfg)
		if err == nil {
			t.Error("ERROR an invalid force version was set should have errored", brgcfg.ForceVersion)
		}
	}

	for _, v := range []int32{StpForceVersion, RstpForceVersion} {
		brgcfg.ForceVersion = v
		err := StpBrgConfigParamCheck(brgcfg)
		if err != nil {
			t.Error("ERROR valid force version was set should not have errored", brgcfg.ForceVersion, err)
		}
	}
}

func TestStpPortParamIfIndex(t *testing.T) {

	// setup
	pcfg := StpPortConfigSetup()

	for _, v := range []int32{0, -1, MaxInterfaceId + 1} {
		pcfg.IfIndex = v
		err := StpPortConfigParamCheck(pcfg)
		if err == nil {
			t.Error("ERROR an invalid ifindex was set should have errored", pcfg.IfIndex)
		}
	}

	for _, v := range []int32{1, 100, MaxInterfaceId} {
		pcfg.IfIndex = v
		err := StpPortConfigParamCheck(pcfg)
		if err != nil {
			t.Error("ERROR valid ifindex was set should not have errored", pcfg.IfIndex, err)
		}
	}
}

func TestStpPortParamPriority(t *testing.T) {

	// setup
	pcfg := StpPortConfigSetup()

	// set bad value
	for _, v := range []uint16{17, 241, 256} {
		pcfg.Priority = v
		err := StpPortConfigParamCheck(pcfg)
		if err == nil {
			t.Error("ERROR an invalid port priority was set should have errored", pcfg.Priority)
		}
	}

	// Table 17-2 0 - 240 in increments of 16
	for i := uint16(0); i <= 240/16; i++ {
		pcfg.Priority = 16 * i
		err := StpPortConfigParamCheck(pcfg)
		if err != nil {
			t.Error("ERROR valid port priority was set should not have errored", pcfg.Priority, err)
		}
	}
}

func TestStpPortParamPathCost(t *testing.T) {

	// setup
	pcfg := StpPortConfigSetup()

	// set bad value
	for _, v := range []int32{-1, 200000001} {
		pcfg.PathCost = v
		err := StpPortConfigParamCheck(pcfg)
		if err == nil {
			t.Error("ERROR an invalid path cost was set should have errored", pcfg.PathCost)
		}
	}

	// 0 is AUTO, Table 17-3
	for _, v := range []int32{0, 1, 20000, 200000000} {
		pcfg.PathCost = v
		err := StpPortConfigParamCheck(pcfg)
		if err != nil {
			t.Error("ERROR valid path cost was set should not have errored", pcfg.PathCost, err)
		}
	}
}
