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

// Package config loads the stpd yaml file
package config

import (
	"github.com/pkg/errors"
	stp "github.com/oshothebig/l2/stp/protocol"
	"gopkg.in/yaml.v3"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLogLevel      = "info"
	DefaultMetricsListen = ":9110"
	DefaultLinkDelay     = time.Millisecond
	DefaultSimDuration   = 120 * time.Second
)

type Config struct {
	Log      Log      `yaml:"log"`
	Bridge   Bridge   `yaml:"bridge"`
	Ports    []Port   `yaml:"ports"`
	Metrics  Metrics  `yaml:"metrics"`
	Topology Topology `yaml:"topology"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

type Bridge struct {
	// empty selects the first non loopback interface
	Address      string `yaml:"address"`
	Priority     uint16 `yaml:"priority"`
	MaxAge       uint16 `yaml:"maxAge"`
	HelloTime    uint16 `yaml:"helloTime"`
	ForwardDelay uint16 `yaml:"forwardDelay"`
	// 1 STP, 2 RSTP
	ForceVersion int32  `yaml:"forceVersion"`
	TxHoldCount  int32  `yaml:"txHoldCount"`
	MigrateTime  uint16 `yaml:"migrateTime"`
}

type Port struct {
	// interface name, resolved through netlink when ifIndex is 0
	Name      string `yaml:"name"`
	IfIndex   int32  `yaml:"ifIndex"`
	Priority  uint16 `yaml:"priority"`
	PathCost  int32  `yaml:"pathCost"`
	Enable    *bool  `yaml:"enable"`
	AdminEdge bool   `yaml:"adminEdge"`
}

// Topology describes a network for the simulator
type Topology struct {
	Duration time.Duration `yaml:"duration"`
	Bridges  []SimBridge   `yaml:"bridges"`
	Links    []SimLink     `yaml:"links"`
	Events   []SimEvent    `yaml:"events"`
}

type SimBridge struct {
	Name   string `yaml:"name"`
	Bridge Bridge `yaml:"bridge"`
	Ports  []Port `yaml:"ports"`
}

type SimLink struct {
	Name  string        `yaml:"name"`
	Delay time.Duration `yaml:"delay"`
	// bridge:port, two for a point to point link, more for a shared LAN
	Ends []string `yaml:"ends"`
}

type SimEvent struct {
	At     time.Duration `yaml:"at"`
	Action string        `yaml:"action"`
	Target string        `yaml:"target"`
	Value  int           `yaml:"value"`
}

const (
	ActionLinkDown   = "link-down"
	ActionLinkUp     = "link-up"
	ActionBridgeDown = "bridge-down"
	ActionBridgeUp   = "bridge-up"
	ActionPriority   = "priority"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) InitDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	cfg.Bridge.InitDefaults()
	for i := range cfg.Ports {
		cfg.Ports[i].InitDefaults()
	}
	cfg.Topology.InitDefaults()
}

func (cfg *Config) Validate() error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if err := cfg.Bridge.Validate(); err != nil {
		return errors.Wrap(err, "bridge")
	}
	if err := validatePorts(cfg.Ports, true); err != nil {
		return err
	}
	return cfg.Topology.Validate()
}

func (b *Bridge) InitDefaults() {
	if b.Priority == 0 {
		b.Priority = stp.BridgePriorityDefault
	}
	if b.MaxAge == 0 {
		b.MaxAge = stp.BridgeMaxAgeDefault
	}
	if b.HelloTime == 0 {
		b.HelloTime = stp.BridgeHelloTimeDefault
	}
	if b.ForwardDelay == 0 {
		b.ForwardDelay = stp.BridgeForwardDelayDefault
	}
	if b.ForceVersion == 0 {
		b.ForceVersion = stp.RstpForceVersion
	}
	if b.TxHoldCount == 0 {
		b.TxHoldCount = stp.TransmitHoldCountDefault
	}
	if b.MigrateTime == 0 {
		b.MigrateTime = stp.MigrateTimeDefault
	}
}

// Validate runs the protocol parameter checks, an empty address is allowed
func (b *Bridge) Validate() error {
	c := b.StpConfig()
	if c.Address == "" {
		c.Address = "00:00:00:00:00:01"
	}
	return stp.StpBrgConfigParamCheck(c)
}

func (b *Bridge) StpConfig() *stp.StpBridgeConfig {
	return &stp.StpBridgeConfig{
		Address:      b.Address,
		Priority:     b.Priority,
		MaxAge:       b.MaxAge,
		HelloTime:    b.HelloTime,
		ForwardDelay: b.ForwardDelay,
		ForceVersion: b.ForceVersion,
		TxHoldCount:  b.TxHoldCount,
		MigrateTime:  b.MigrateTime,
	}
}

func (p *Port) InitDefaults() {
	if p.Priority == 0 {
		p.Priority = stp.PortPriorityDefault
	}
	if p.PathCost == 0 {
		p.PathCost = stp.PortPathCostDefault
	}
	if p.Enable == nil {
		enable := true
		p.Enable = &enable
	}
}

// StpConfig converts the port, the interface index must be resolved first
func (p *Port) StpConfig() stp.StpPortConfig {
	return stp.StpPortConfig{
		IfIndex:       p.IfIndex,
		Priority:      p.Priority,
		Enable:        p.Enable == nil || *p.Enable,
		PathCost:      p.PathCost,
		AdminEdgePort: p.AdminEdge,
	}
}

func validatePorts(ports []Port, allowUnresolved bool) error {
	seenIdx := make(map[int32]bool)
	seenName := make(map[string]bool)
	for i := range ports {
		p := &ports[i]
		if p.IfIndex == 0 {
			if !allowUnresolved || p.Name == "" {
				return errors.Errorf("port %d: ifIndex or name required", i)
			}
		} else {
			c := p.StpConfig()
			if err := stp.StpPortConfigParamCheck(&c); err != nil {
				return errors.Wrapf(err, "port %d", i)
			}
			if seenIdx[p.IfIndex] {
				return errors.Errorf("port %d: duplicate ifIndex %d", i, p.IfIndex)
			}
			seenIdx[p.IfIndex] = true
		}
		if p.Name != "" {
			if seenName[p.Name] {
				return errors.Errorf("port %d: duplicate name %q", i, p.Name)
			}
			seenName[p.Name] = true
		}
		if p.IfIndex == 0 {
			// only the ranges can be checked before resolution
			c := p.StpConfig()
			c.IfIndex = 1
			if err := stp.StpPortConfigParamCheck(&c); err != nil {
				return errors.Wrapf(err, "port %q", p.Name)
			}
		}
	}
	return nil
}

func (t *Topology) InitDefaults() {
	if len(t.Bridges) == 0 {
		return
	}
	if t.Duration == 0 {
		t.Duration = DefaultSimDuration
	}
	for i := range t.Bridges {
		t.Bridges[i].Bridge.InitDefaults()
		for j := range t.Bridges[i].Ports {
			t.Bridges[i].Ports[j].InitDefaults()
		}
	}
	for i := range t.Links {
		if t.Links[i].Delay == 0 {
			t.Links[i].Delay = DefaultLinkDelay
		}
	}
}

func (t *Topology) Validate() error {
	bridges := make(map[string]*SimBridge)
	for i := range t.Bridges {
		b := &t.Bridges[i]
		if b.Name == "" {
			return errors.Errorf("topology bridge %d: name required", i)
		}
		if _, ok := bridges[b.Name]; ok {
			return errors.Errorf("topology bridge %q defined twice", b.Name)
		}
		if b.Bridge.Address == "" {
			return errors.Errorf("topology bridge %q: address required", b.Name)
		}
		if err := b.Bridge.Validate(); err != nil {
			return errors.Wrapf(err, "topology bridge %q", b.Name)
		}
		if err := validatePorts(b.Ports, false); err != nil {
			return errors.Wrapf(err, "topology bridge %q", b.Name)
		}
		bridges[b.Name] = b
	}
	links := make(map[string]bool)
	used := make(map[string]bool)
	for i := range t.Links {
		l := &t.Links[i]
		if l.Name == "" {
			return errors.Errorf("topology link %d: name required", i)
		}
		if links[l.Name] {
			return errors.Errorf("topology link %q defined twice", l.Name)
		}
		links[l.Name] = true
		if len(l.Ends) < 2 {
			return errors.Errorf("topology link %q needs at least two ends", l.Name)
		}
		for _, end := range l.Ends {
			name, port, err := ParseEnd(end)
			if err != nil {
				return errors.Wrapf(err, "topology link %q", l.Name)
			}
			b, ok := bridges[name]
			if !ok {
				return errors.Errorf("topology link %q: unknown bridge %q", l.Name, name)
			}
			if !b.hasPort(port) {
				return errors.Errorf("topology link %q: bridge %q has no port %d", l.Name, name, port)
			}
			if used[end] {
				return errors.Errorf("topology link %q: %s already attached", l.Name, end)
			}
			used[end] = true
		}
	}
	for i, ev := range t.Events {
		switch ev.Action {
		case ActionLinkDown, ActionLinkUp:
			if !links[ev.Target] {
				return errors.Errorf("topology event %d: unknown link %q", i, ev.Target)
			}
		case ActionBridgeDown, ActionBridgeUp, ActionPriority:
			if _, ok := bridges[ev.Target]; !ok {
				return errors.Errorf("topology event %d: unknown bridge %q", i, ev.Target)
			}
		default:
			return errors.Errorf("topology event %d: unknown action %q", i, ev.Action)
		}
	}
	return nil
}

func (b *SimBridge) hasPort(id int32) bool {
	for _, p := range b.Ports {
		if p.IfIndex == id {
			return true
		}
	}
	return false
}

// ParseEnd splits "bridge:port"
func ParseEnd(end string) (string, int32, error) {
	i := strings.LastIndex(end, ":")
	if i <= 0 || i == len(end)-1 {
		return "", 0, errors.Errorf("invalid link end %q want bridge:port", end)
	}
	port, err := strconv.ParseInt(end[i+1:], 10, 32)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid link end %q", end)
	}
	return end[:i], int32(port), nil
}
