// simulate.go
package cmd

import (
	"fmt"
	"github.com/oshothebig/l2/stp/sim"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"time"
)

type simulateOptions struct {
	duration time.Duration
	trace    bool
	strict   bool
}

func newSimulate(o *rootOptions) *cobra.Command {
	so := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the topology section of the config on a virtual clock",
		Example: `  stpd simulate -c ring.yaml
  stpd simulate -c ring.yaml --duration 5m --trace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, log, err := o.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			topo := &cfg.Topology
			if len(topo.Bridges) == 0 {
				return errors.Errorf("%s has no topology", o.config)
			}
			if so.duration > 0 {
				topo.Duration = so.duration
			}
			s, err := sim.FromConfig(topo, log.Named("sim"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if so.trace {
				s.SetTrace(func(tr sim.Trace) {
					fmt.Fprintf(out, "%10s %-6s %-4s %3d %s\n", tr.At, tr.Bridge, tr.Kind, tr.Port, tr.Detail)
				})
			}
			if err := s.Start(); err != nil {
				return err
			}
			s.RunFor(topo.Duration)

			fmt.Fprintf(out, "state at %s\n", s.Now())
			s.WriteTable(out)
			return reportChecks(cmd, s, so.strict)
		},
	}
	cmd.Flags().DurationVar(&so.duration, "duration", 0, "virtual time to run, overrides topology.duration")
	cmd.Flags().BoolVar(&so.trace, "trace", false, "print every frame and topology event")
	cmd.Flags().BoolVar(&so.strict, "strict", false, "fail unless the network converged to a single loop free tree")
	return cmd
}

func reportChecks(cmd *cobra.Command, s *sim.Simulator, strict bool) error {
	out := cmd.OutOrStdout()
	var failed error
	for _, c := range []struct {
		name string
		fn   func() error
	}{
		{"single root", s.CheckSingleRoot},
		{"loop free", s.CheckLoopFree},
		{"spanning", s.CheckSpanning},
	} {
		if err := c.fn(); err != nil {
			fmt.Fprintf(out, "%-12s FAIL %s\n", c.name, err)
			if failed == nil {
				failed = errors.Wrap(err, c.name)
			}
			continue
		}
		fmt.Fprintf(out, "%-12s ok\n", c.name)
	}
	if strict {
		return failed
	}
	return nil
}
