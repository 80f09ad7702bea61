// config_test.go
package config

import (
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
log:
  level: debug
bridge:
  address: "00:11:22:33:44:55"
  priority: 4096
  forceVersion: 1
ports:
  - name: eth1
  - ifIndex: 3
    pathCost: 4
    adminEdge: true
    enable: false
topology:
  duration: 90s
  bridges:
    - name: A
      bridge:
        address: "00:00:00:00:00:0a"
      ports:
        - ifIndex: 1
        - ifIndex: 2
    - name: B
      bridge:
        address: "00:00:00:00:00:0b"
      ports:
        - ifIndex: 1
        - ifIndex: 2
  links:
    - name: ab
      ends: ["A:1", "B:1"]
    - name: lan
      delay: 5ms
      ends: ["A:2", "B:2"]
  events:
    - at: 30s
      action: link-down
      target: ab
    - at: 60s
      action: priority
      target: B
      value: 0
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`bridge: {address: "00:11:22:33:44:55"}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultMetricsListen, cfg.Metrics.Listen)

	want := stp.NewStpBridgeConfig("00:11:22:33:44:55")
	assert.Equal(t, want, cfg.Bridge.StpConfig())
	assert.Empty(t, cfg.Topology.Bridges)
	assert.Zero(t, cfg.Topology.Duration)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, uint16(4096), cfg.Bridge.Priority)
	assert.Equal(t, int32(stp.StpForceVersion), cfg.Bridge.ForceVersion)

	require.Len(t, cfg.Ports, 2)
	assert.Equal(t, "eth1", cfg.Ports[0].Name)
	assert.Equal(t, int32(stp.PortPathCostDefault), cfg.Ports[0].PathCost)
	assert.True(t, *cfg.Ports[0].Enable)
	pc := cfg.Ports[1].StpConfig()
	assert.Equal(t, stp.StpPortConfig{IfIndex: 3, Priority: 128, PathCost: 4, AdminEdgePort: true}, pc)

	assert.Equal(t, 90*time.Second, cfg.Topology.Duration)
	require.Len(t, cfg.Topology.Links, 2)
	assert.Equal(t, DefaultLinkDelay, cfg.Topology.Links[0].Delay)
	assert.Equal(t, 5*time.Millisecond, cfg.Topology.Links[1].Delay)
	assert.Equal(t, uint16(stp.BridgeMaxAgeDefault), cfg.Topology.Bridges[1].Bridge.MaxAge)
	require.Len(t, cfg.Topology.Events, 2)
	assert.Equal(t, SimEvent{At: 30 * time.Second, Action: ActionLinkDown, Target: "ab"}, cfg.Topology.Events[0])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "log: {level: loud}", "invalid log level"},
		{"priority", "bridge: {priority: 100}", "Priority"},
		{"timers", "bridge: {maxAge: 40, forwardDelay: 4}", "Max Age"},
		{"version", "bridge: {forceVersion: 3}", "Force Version"},
		{"port unnamed", "ports: [{priority: 16}]", "ifIndex or name required"},
		{"port priority", "ports: [{ifIndex: 1, priority: 17}]", "Priority"},
		{"port dup", "ports: [{ifIndex: 1}, {ifIndex: 1}]", "duplicate ifIndex"},
		{"port dup name", "ports: [{name: a}, {name: a}]", "duplicate name"},
		{"topo no address", "topology: {bridges: [{name: A}]}", "address required"},
		{"topo dup", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}}, {name: A, bridge: {address: "00:00:00:00:00:02"}}]}`, "defined twice"},
		{"topo port name only", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}, ports: [{name: x}]}]}`, "ifIndex or name required"},
		{"topo one end", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}, ports: [{ifIndex: 1}]}], links: [{name: l, ends: ["A:1"]}]}`, "at least two ends"},
		{"topo unknown bridge", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}, ports: [{ifIndex: 1}]}], links: [{name: l, ends: ["A:1", "B:1"]}]}`, "unknown bridge"},
		{"topo unknown port", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}, ports: [{ifIndex: 1}]}], links: [{name: l, ends: ["A:1", "A:2"]}]}`, "has no port"},
		{"topo end reused", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}, ports: [{ifIndex: 1}]}], links: [{name: l, ends: ["A:1", "A:1"]}]}`, "already attached"},
		{"topo bad end", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}, ports: [{ifIndex: 1}]}], links: [{name: l, ends: ["A1", "A:1"]}]}`, "invalid link end"},
		{"topo action", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}}], events: [{action: explode, target: A}]}`, "unknown action"},
		{"topo event link", `topology: {bridges: [{name: A, bridge: {address: "00:00:00:00:00:01"}}], events: [{action: link-down, target: x}]}`, "unknown link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEnd(t *testing.T) {
	name, port, err := ParseEnd("core-1:12")
	require.NoError(t, err)
	assert.Equal(t, "core-1", name)
	assert.Equal(t, int32(12), port)

	for _, bad := range []string{"", ":1", "A:", "A:x"} {
		_, _, err := ParseEnd(bad)
		assert.Error(t, err, bad)
	}
}
