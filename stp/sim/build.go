// build.go
package sim

import (
	"github.com/pkg/errors"
	"github.com/oshothebig/l2/stp/config"
	stp "github.com/oshothebig/l2/stp/protocol"
	"go.uber.org/zap"
)

// FromConfig builds the network described by topo and queues its events,
// the returned simulator still has to be started
func FromConfig(topo *config.Topology, log *zap.Logger) (*Simulator, error) {
	if len(topo.Bridges) == 0 {
		return nil, errors.New("topology has no bridges")
	}
	s := New(log)
	for i := range topo.Bridges {
		tb := &topo.Bridges[i]
		ports := make([]stp.StpPortConfig, 0, len(tb.Ports))
		for j := range tb.Ports {
			ports = append(ports, tb.Ports[j].StpConfig())
		}
		if _, err := s.AddBridge(tb.Name, tb.Bridge.StpConfig(), ports); err != nil {
			return nil, err
		}
	}
	for i := range topo.Links {
		l := &topo.Links[i]
		ends := make([]Port, 0, len(l.Ends))
		for _, end := range l.Ends {
			name, port, err := config.ParseEnd(end)
			if err != nil {
				return nil, err
			}
			ends = append(ends, Port{Bridge: name, Port: stp.InterfaceId(port)})
		}
		if _, err := s.Connect(l.Name, l.Delay, ends...); err != nil {
			return nil, err
		}
	}
	for _, ev := range topo.Events {
		ev := ev
		s.At(ev.At, func() {
			if err := s.apply(ev); err != nil {
				s.log.Warn("topology event failed", zap.String("action", ev.Action),
					zap.String("target", ev.Target), zap.Error(err))
			}
		})
	}
	return s, nil
}

func (s *Simulator) apply(ev config.SimEvent) error {
	switch ev.Action {
	case config.ActionLinkDown:
		return s.LinkDown(ev.Target)
	case config.ActionLinkUp:
		return s.LinkUp(ev.Target)
	case config.ActionBridgeDown:
		return s.BridgeDown(ev.Target)
	case config.ActionBridgeUp:
		return s.BridgeUp(ev.Target)
	case config.ActionPriority:
		if ev.Value < 0 || ev.Value > 0xffff {
			return errors.Errorf("priority %d out of range", ev.Value)
		}
		return s.SetPriority(ev.Target, uint16(ev.Value))
	}
	return errors.Errorf("unknown action %q", ev.Action)
}

// Run builds, starts and runs topo for its configured duration
func Run(topo *config.Topology, log *zap.Logger) (*Simulator, error) {
	s, err := FromConfig(topo, log)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	s.RunFor(topo.Duration)
	return s, nil
}
