// cmd_test.go
package cmd

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

const triangleConfig = `
log:
  level: error
ports:
  - name: eth0
  - ifIndex: 7
    pathCost: 2000
topology:
  duration: 40s
  bridges:
    - name: A
      bridge: {address: "00:00:00:00:00:0a", priority: 4096}
      ports: [{ifIndex: 1}, {ifIndex: 2}]
    - name: B
      bridge: {address: "00:00:00:00:00:0b"}
      ports: [{ifIndex: 1}, {ifIndex: 2}]
    - name: C
      bridge: {address: "00:00:00:00:00:0c"}
      ports: [{ifIndex: 1}, {ifIndex: 2}]
  links:
    - {name: ab, ends: ["A:1", "B:1"]}
    - {name: ac, ends: ["A:2", "C:1"]}
    - {name: bc, ends: ["B:2", "C:2"]}
`

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "stpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	root := NewRoot()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	out, err := execute(t, "check", "-c", writeConfigFile(t, triangleConfig))
	require.NoError(t, err)

	assert.Contains(t, out, "auto")
	assert.Contains(t, out, "rstp")
	assert.Contains(t, out, "eth0")
	assert.Contains(t, out, "2000")
	assert.Contains(t, out, "topology: 3 bridges, 3 links, 0 events, runs 40s")
	assert.Contains(t, out, "A:2 C:1")
}

func TestCheckInvalid(t *testing.T) {
	_, err := execute(t, "check", "-c", writeConfigFile(t, "bridge: {priority: 100}\n"))
	assert.Error(t, err)

	_, err = execute(t, "check", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogLevelOverride(t *testing.T) {
	path := writeConfigFile(t, triangleConfig)
	_, err := execute(t, "check", "-c", path, "--log-level", "debug")
	assert.NoError(t, err)

	_, err = execute(t, "check", "-c", path, "--log-level", "loud")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	out, err := execute(t, "simulate", "-c", writeConfigFile(t, triangleConfig), "--strict")
	require.NoError(t, err)

	assert.Contains(t, out, "state at 40s")
	assert.Contains(t, out, "self")
	assert.Contains(t, out, "Alternate")
	assert.Contains(t, out, "single root  ok")
	assert.Contains(t, out, "spanning     ok")
}

func TestSimulateTrace(t *testing.T) {
	out, err := execute(t, "simulate", "-c", writeConfigFile(t, triangleConfig), "--duration", "1s", "--trace")
	require.NoError(t, err)
	assert.Contains(t, out, " tx ")
	assert.Contains(t, out, "state at 1s")
}

func TestSimulateWithoutTopology(t *testing.T) {
	_, err := execute(t, "simulate", "-c", writeConfigFile(t, "log: {level: error}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no topology")
}
