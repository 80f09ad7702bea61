// check.go
package cmd

import (
	"fmt"
	"github.com/oshothebig/l2/stp/config"
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/oshothebig/l2/stp/sim"
	"github.com/spf13/cobra"
	"io"
	"strconv"
	"strings"
)

func newCheck(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, log, err := o.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			writeConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func versionName(v int32) string {
	switch v {
	case stp.StpForceVersion:
		return "stp"
	case stp.RstpForceVersion:
		return "rstp"
	}
	return strconv.Itoa(int(v))
}

func writeBridge(w io.Writer, name string, b *config.Bridge) {
	addr := b.Address
	if addr == "" {
		addr = "auto"
	}
	table := sim.NewTable(w, "BRIDGE", "ADDRESS", "PROTOCOL", "PRIORITY", "MAXAGE", "HELLO", "FWDDELAY", "TXHOLD")
	table.Append([]string{
		name, addr, versionName(b.ForceVersion),
		strconv.Itoa(int(b.Priority)),
		strconv.Itoa(int(b.MaxAge)),
		strconv.Itoa(int(b.HelloTime)),
		strconv.Itoa(int(b.ForwardDelay)),
		strconv.Itoa(int(b.TxHoldCount)),
	})
	table.Render()
}

func writePorts(w io.Writer, ports []config.Port) {
	table := sim.NewTable(w, "PORT", "IFINDEX", "PRIORITY", "COST", "ENABLED", "EDGE")
	for i := range ports {
		p := ports[i].StpConfig()
		name, idx := ports[i].Name, "auto"
		if name == "" {
			name = "-"
		}
		if p.IfIndex != 0 {
			idx = strconv.Itoa(int(p.IfIndex))
		}
		table.Append([]string{
			name, idx,
			strconv.Itoa(int(p.Priority)),
			strconv.Itoa(int(p.PathCost)),
			strconv.FormatBool(p.Enable),
			strconv.FormatBool(p.AdminEdgePort),
		})
	}
	table.Render()
}

func writeConfig(w io.Writer, cfg *config.Config) {
	writeBridge(w, "local", &cfg.Bridge)
	if len(cfg.Ports) > 0 {
		fmt.Fprintln(w)
		writePorts(w, cfg.Ports)
	}
	topo := &cfg.Topology
	if len(topo.Bridges) == 0 {
		return
	}
	fmt.Fprintf(w, "\ntopology: %d bridges, %d links, %d events, runs %s\n",
		len(topo.Bridges), len(topo.Links), len(topo.Events), topo.Duration)
	for i := range topo.Bridges {
		fmt.Fprintln(w)
		writeBridge(w, topo.Bridges[i].Name, &topo.Bridges[i].Bridge)
	}
	fmt.Fprintln(w)
	table := sim.NewTable(w, "LINK", "DELAY", "ENDS")
	for _, l := range topo.Links {
		table.Append([]string{l.Name, l.Delay.String(), strings.Join(l.Ends, " ")})
	}
	table.Render()
}
