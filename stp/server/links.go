// links.go
package server

import (
	"context"
	"github.com/pkg/errors"
	"github.com/oshothebig/l2/stp/config"
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/vishvananda/netlink"
	"net"
)

// Link is a host interface and its operational state
type Link struct {
	stp.Interface
	Up bool
}

// LinkEvent reports a carrier transition
type LinkEvent struct {
	Index int32
	Name  string
	Up    bool
}

// LinkSource lists host interfaces and follows their carrier
type LinkSource interface {
	List() ([]Link, error)
	// Subscribe pushes carrier transitions to ch until ctx is done
	Subscribe(ctx context.Context, ch chan<- LinkEvent) error
}

// NetlinkSource reads links from the kernel over rtnetlink
type NetlinkSource struct{}

var _ LinkSource = NetlinkSource{}

func linkFromAttrs(a *netlink.LinkAttrs) Link {
	return Link{
		Interface: stp.Interface{
			Name:         a.Name,
			Index:        int32(a.Index),
			HardwareAddr: a.HardwareAddr,
			Loopback:     a.Flags&net.FlagLoopback != 0,
		},
		Up: linkUp(a),
	}
}

// some drivers never report an operstate, fall back to the admin flag
func linkUp(a *netlink.LinkAttrs) bool {
	switch a.OperState {
	case netlink.OperUp:
		return true
	case netlink.OperUnknown:
		return a.Flags&net.FlagUp != 0
	}
	return false
}

func (NetlinkSource) List() ([]Link, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, errors.Wrap(err, "listing links")
	}
	out := make([]Link, 0, len(links))
	for _, l := range links {
		out = append(out, linkFromAttrs(l.Attrs()))
	}
	return out, nil
}

func (NetlinkSource) Subscribe(ctx context.Context, ch chan<- LinkEvent) error {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	defer close(done)
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return errors.Wrap(err, "subscribing to link updates")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return errors.New("link update channel closed")
			}
			l := linkFromAttrs(u.Link.Attrs())
			select {
			case ch <- LinkEvent{Index: l.Index, Name: l.Name, Up: l.Up}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// boundPort is a configured port matched to a host interface
type boundPort struct {
	cfg  stp.StpPortConfig
	name string
	addr net.HardwareAddr
	up   bool
}

// bindPorts resolves every configured port against the host links, a port
// may name its interface, give its ifindex, or both as long as they agree
func bindPorts(ports []config.Port, links []Link) ([]boundPort, error) {
	byName := make(map[string]Link, len(links))
	byIndex := make(map[int32]Link, len(links))
	for _, l := range links {
		byName[l.Name] = l
		byIndex[l.Index] = l
	}
	out := make([]boundPort, 0, len(ports))
	for i := range ports {
		p := &ports[i]
		var l Link
		var ok bool
		switch {
		case p.Name != "":
			l, ok = byName[p.Name]
			if !ok {
				return nil, errors.Errorf("port %s: no such interface", p.Name)
			}
			if p.IfIndex != 0 && p.IfIndex != l.Index {
				return nil, errors.Errorf("port %s: ifIndex %d does not match interface index %d", p.Name, p.IfIndex, l.Index)
			}
		default:
			l, ok = byIndex[p.IfIndex]
			if !ok {
				return nil, errors.Errorf("port %d: no such interface", p.IfIndex)
			}
		}
		if l.Loopback {
			return nil, errors.Errorf("port %s: loopback interfaces cannot be bridged", l.Name)
		}
		cfg := p.StpConfig()
		cfg.IfIndex = l.Index
		out = append(out, boundPort{cfg: cfg, name: l.Name, addr: l.HardwareAddr, up: l.Up})
	}
	return out, nil
}

func linkInterfaces(links []Link) []stp.Interface {
	out := make([]stp.Interface, 0, len(links))
	for _, l := range links {
		out = append(out, l.Interface)
	}
	return out
}
